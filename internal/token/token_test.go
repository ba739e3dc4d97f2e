package token

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/tip-staking/pkg/types"
)

func testMetadata() *Metadata {
	return &Metadata{
		Name:     "TIP Token",
		Symbol:   "TIP",
		Decimals: 18,
		Creator:  types.Address{0xAA},
	}
}

func TestDeriveTokenID_Deterministic(t *testing.T) {
	creator := types.Address{0x01}
	a := DeriveTokenID(creator, "TIP")
	b := DeriveTokenID(creator, "tip")
	if a != b {
		t.Error("symbol case should not change the token id")
	}
	if types.Hash(a).IsZero() {
		t.Error("token id should not be zero")
	}
}

func TestDeriveTokenID_Distinct(t *testing.T) {
	if DeriveTokenID(types.Address{0x01}, "TIP") == DeriveTokenID(types.Address{0x02}, "TIP") {
		t.Error("different creators should give different ids")
	}
	if DeriveTokenID(types.Address{0x01}, "TIP") == DeriveTokenID(types.Address{0x01}, "TAP") {
		t.Error("different symbols should give different ids")
	}
}

func TestMetadata_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Metadata)
		ok     bool
	}{
		{"valid", func(m *Metadata) {}, true},
		{"empty name", func(m *Metadata) { m.Name = "" }, false},
		{"empty symbol", func(m *Metadata) { m.Symbol = "" }, false},
		{"lowercase symbol", func(m *Metadata) { m.Symbol = "tip" }, false},
		{"long symbol", func(m *Metadata) { m.Symbol = "ABCDEFGHIJKLMNOPQ" }, false},
		{"too many decimals", func(m *Metadata) { m.Decimals = 37 }, false},
		{"zero creator", func(m *Metadata) { m.Creator = types.Address{} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMetadata()
			tt.mutate(m)
			err := m.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidMetadata) {
				t.Fatalf("err = %v, want ErrInvalidMetadata", err)
			}
		})
	}
}

// Package token implements the fungible token the staking engine moves
// value through.
//
// A node hosts exactly one token. Balances and allowances follow the
// familiar ERC-20 rules: holders move their own balance with Transfer,
// and grant third parties (the staking custody) a spending allowance
// consumed by TransferFrom.
package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/tip-staking/pkg/crypto"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

// Metadata limits.
const (
	MaxNameLen   = 64
	MaxSymbolLen = 16
	MaxDecimals  = 36
)

// ErrInvalidMetadata is returned for unusable token descriptions.
var ErrInvalidMetadata = errors.New("invalid token metadata")

// DeriveTokenID computes a deterministic TokenID from the creator and
// the ticker symbol.
// TokenID = BLAKE3(creator || 0x00 || upper(symbol)).
func DeriveTokenID(creator types.Address, symbol string) types.TokenID {
	return types.TokenID(crypto.HashParts(creator[:], []byte(strings.ToUpper(symbol))))
}

// Metadata holds descriptive information about a token.
type Metadata struct {
	Name     string        `json:"name"`
	Symbol   string        `json:"symbol"`
	Decimals uint8         `json:"decimals"`
	Creator  types.Address `json:"creator"`
}

// ID returns the TokenID derived from the metadata.
func (m *Metadata) ID() types.TokenID {
	return DeriveTokenID(m.Creator, m.Symbol)
}

// Validate checks the metadata fields.
func (m *Metadata) Validate() error {
	if m.Name == "" || len(m.Name) > MaxNameLen {
		return fmt.Errorf("%w: name length must be 1..%d", ErrInvalidMetadata, MaxNameLen)
	}
	if m.Symbol == "" || len(m.Symbol) > MaxSymbolLen {
		return fmt.Errorf("%w: symbol length must be 1..%d", ErrInvalidMetadata, MaxSymbolLen)
	}
	for _, r := range m.Symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("%w: symbol %q must be uppercase alphanumeric", ErrInvalidMetadata, m.Symbol)
		}
	}
	if m.Decimals > MaxDecimals {
		return fmt.Errorf("%w: decimals %d exceeds %d", ErrInvalidMetadata, m.Decimals, MaxDecimals)
	}
	if m.Creator.IsZero() {
		return fmt.Errorf("%w: zero creator", ErrInvalidMetadata)
	}
	return nil
}

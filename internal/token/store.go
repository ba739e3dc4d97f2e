package token

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

var prefixMeta = []byte("m/") // m/<tokenID(32)> -> Metadata JSON

// Store persists token metadata.
type Store struct {
	db storage.DB
}

// NewStore creates a token metadata store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put stores metadata for a token.
func (s *Store) Put(id types.TokenID, meta *Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("token marshal: %w", err)
	}
	return s.db.Put(metaKey(id), data)
}

// Get retrieves metadata for a token.
func (s *Store) Get(id types.TokenID) (*Metadata, error) {
	data, err := s.db.Get(metaKey(id))
	if err != nil {
		return nil, fmt.Errorf("token get: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("token unmarshal: %w", err)
	}
	return &meta, nil
}

// Has checks if metadata exists for a token.
func (s *Store) Has(id types.TokenID) (bool, error) {
	return s.db.Has(metaKey(id))
}

func metaKey(id types.TokenID) []byte {
	key := make([]byte, len(prefixMeta)+types.HashSize)
	copy(key, prefixMeta)
	copy(key[len(prefixMeta):], id[:])
	return key
}

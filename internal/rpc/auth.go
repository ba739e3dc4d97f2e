package rpc

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/pkg/crypto"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

// ErrStaleNonce is returned when a signed call reuses an old nonce.
var ErrStaleNonce = errors.New("nonce already used")

// SigningHash is the digest a caller signs to authorise method.
//
//	BLAKE3(token_id || 0x00 || method || 0x00 || nonce(8, LE) || 0x00 || arg0 || 0x00 || ...)
//
// The token id binds the signature to one ledger so a request signed for
// testnet cannot be replayed on mainnet. Args are the canonical string
// forms of the call's arguments (decimal amounts, 0x addresses).
func SigningHash(domain types.TokenID, method string, nonce uint64, args ...string) types.Hash {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], nonce)
	parts := make([][]byte, 0, 3+len(args))
	parts = append(parts, domain[:], []byte(method), n[:])
	for _, a := range args {
		parts = append(parts, []byte(a))
	}
	return crypto.HashParts(parts...)
}

// SignAuth builds the Auth envelope for a call.
func SignAuth(key *crypto.PrivateKey, domain types.TokenID, method string, nonce uint64, args ...string) (Auth, error) {
	hash := SigningHash(domain, method, nonce, args...)
	sig, err := key.Sign(hash[:])
	if err != nil {
		return Auth{}, fmt.Errorf("sign %s: %w", method, err)
	}
	return Auth{
		PubKey:    hex.EncodeToString(key.PublicKey()),
		Nonce:     nonce,
		Signature: hex.EncodeToString(sig),
	}, nil
}

// VerifyAuth checks the signature and returns the caller's address. The
// nonce is not consumed.
func VerifyAuth(a Auth, domain types.TokenID, method string, args ...string) (types.Address, error) {
	pub, err := hex.DecodeString(a.PubKey)
	if err != nil || len(pub) != 33 {
		return types.Address{}, fmt.Errorf("pubkey must be 33-byte compressed hex")
	}
	sig, err := hex.DecodeString(a.Signature)
	if err != nil || len(sig) != 64 {
		return types.Address{}, fmt.Errorf("signature must be 64-byte hex")
	}
	hash := SigningHash(domain, method, a.Nonce, args...)
	if !crypto.VerifySignature(hash[:], sig, pub) {
		return types.Address{}, fmt.Errorf("invalid signature")
	}
	return crypto.AddressFromPubKey(pub), nil
}

var prefixNonce = []byte("n/") // n/<addr(20)> -> last nonce (8, BE)

// NonceStore tracks the last accepted nonce of every caller.
type NonceStore struct {
	mu sync.Mutex
	db storage.DB
}

// NewNonceStore creates a nonce store over db.
func NewNonceStore(db storage.DB) *NonceStore {
	return &NonceStore{db: db}
}

// Get returns the last accepted nonce for addr (0 if none).
func (n *NonceStore) Get(addr types.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.get(addr)
}

// Use records nonce for addr. It must exceed the last accepted one.
func (n *NonceStore) Use(addr types.Address, nonce uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	last, err := n.get(addr)
	if err != nil {
		return err
	}
	if nonce <= last {
		return fmt.Errorf("%w: got %d, last %d", ErrStaleNonce, nonce, last)
	}
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], nonce)
	return n.db.Put(nonceKey(addr), v[:])
}

func (n *NonceStore) get(addr types.Address) (uint64, error) {
	v, err := n.db.Get(nonceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt nonce for %s", addr)
	}
	return binary.BigEndian.Uint64(v), nil
}

func nonceKey(addr types.Address) []byte {
	key := make([]byte, len(prefixNonce)+types.AddressSize)
	copy(key, prefixNonce)
	copy(key[len(prefixNonce):], addr[:])
	return key
}

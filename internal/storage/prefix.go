package storage

// Key namespaces used by the node inside a single database.
var (
	PrefixToken   = []byte("tok/")
	PrefixStaking = []byte("stk/")
	PrefixRPC     = []byte("rpc/")
)

// PrefixDB wraps a DB and prepends a fixed prefix to all keys.
// This isolates each ledger's data within a single underlying database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &PrefixDB{inner: inner, prefix: p}
}

// prefixed returns key with the prefix prepended.
func (p *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, len(p.prefix)+len(key))
	copy(out, p.prefix)
	copy(out[len(p.prefix):], key)
	return out
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.prefixed(key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.prefixed(key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.prefixed(key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.prefixed(key))
}

// ForEach iterates over all keys with the given prefix (within the PrefixDB namespace).
// The callback receives keys with the PrefixDB prefix stripped, so callers see only
// their logical keyspace.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	fullPrefix := p.prefixed(prefix)
	return p.inner.ForEach(fullPrefix, func(key, value []byte) error {
		// Strip the PrefixDB prefix so the caller sees only its logical key.
		stripped := key[len(p.prefix):]
		return fn(stripped, value)
	})
}

// Close is a no-op. The outer DB manages its own lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch creates a batch that prepends the prefix to all keys, delegating
// to the inner DB's batch for atomic commits.
func (p *PrefixDB) NewBatch() Batch {
	b := NewBatch(p.inner)
	return &prefixBatch{prefixWriter: prefixWriter{inner: b, prefix: p.prefix}, batch: b}
}

// prefixWriter prepends prefix to every key it stages into inner.
type prefixWriter struct {
	inner  Writer
	prefix []byte
}

func (pw *prefixWriter) key(key []byte) []byte {
	out := make([]byte, len(pw.prefix)+len(key))
	copy(out, pw.prefix)
	copy(out[len(pw.prefix):], key)
	return out
}

func (pw *prefixWriter) Put(key, value []byte) error {
	return pw.inner.Put(pw.key(key), value)
}

func (pw *prefixWriter) Delete(key []byte) error {
	return pw.inner.Delete(pw.key(key))
}

type prefixBatch struct {
	prefixWriter
	batch Batch
}

func (pb *prefixBatch) Commit() error {
	return pb.batch.Commit()
}

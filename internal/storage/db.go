// Package storage provides the key-value stores behind the token and
// staking ledgers.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in ascending key
	// order. The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Writer stages writes.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Batch buffers writes and applies them atomically on Commit.
// A batch must not be used after Commit.
type Batch interface {
	Writer
	Commit() error
}

// Batcher is implemented by stores that support atomic batches.
type Batcher interface {
	NewBatch() Batch
}

// NewBatch returns an atomic batch for db when supported, otherwise a
// buffered batch that replays writes one by one on Commit.
func NewBatch(db DB) Batch {
	if b, ok := db.(Batcher); ok {
		return b.NewBatch()
	}
	return &fallbackBatch{db: db}
}

type batchOp struct {
	key   []byte
	value []byte // nil means delete
}

// fallbackBatch buffers writes and applies them non-atomically.
type fallbackBatch struct {
	db  DB
	ops []batchOp
}

func (fb *fallbackBatch) Put(key, value []byte) error {
	fb.ops = append(fb.ops, batchOp{key: cloneBytes(key), value: cloneValue(value)})
	return nil
}

func (fb *fallbackBatch) Delete(key []byte) error {
	fb.ops = append(fb.ops, batchOp{key: cloneBytes(key)})
	return nil
}

func (fb *fallbackBatch) Commit() error {
	for _, op := range fb.ops {
		if op.value == nil {
			if err := fb.db.Delete(op.key); err != nil {
				return err
			}
		} else if err := fb.db.Put(op.key, op.value); err != nil {
			return err
		}
	}
	fb.ops = nil
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// cloneValue copies a value, keeping an empty value distinct from a delete.
func cloneValue(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return cloneBytes(b)
}

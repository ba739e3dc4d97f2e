package storage

import "errors"

// ErrForeignDB is returned when a store outside a shared batch's database
// tries to stage into it.
var ErrForeignDB = errors.New("store is not backed by the batch's database")

// Root strips PrefixDB wrappers and returns the database underneath.
func Root(db DB) DB {
	for {
		p, ok := db.(*PrefixDB)
		if !ok {
			return db
		}
		db = p.inner
	}
}

// SameRoot reports whether a and b write to the same database.
func SameRoot(a, b DB) bool {
	return Root(a) == Root(b)
}

// SharedBatch is one atomic batch over a root database that several
// prefixed stores stage into before a single Commit. Writes from every
// store land together or not at all.
type SharedBatch struct {
	root  DB
	batch Batch
}

// NewSharedBatch opens a shared batch over the root of db.
func NewSharedBatch(db DB) *SharedBatch {
	root := Root(db)
	return &SharedBatch{root: root, batch: NewBatch(root)}
}

// For returns a writer that stages into the batch under db's namespace.
func (sb *SharedBatch) For(db DB) (Writer, error) {
	if Root(db) != sb.root {
		return nil, ErrForeignDB
	}
	return scope(db, sb.batch), nil
}

// Commit applies everything staged through any writer.
func (sb *SharedBatch) Commit() error {
	return sb.batch.Commit()
}

func scope(db DB, w Writer) Writer {
	p, ok := db.(*PrefixDB)
	if !ok {
		return w
	}
	return &prefixWriter{inner: scope(p.inner, w), prefix: p.prefix}
}

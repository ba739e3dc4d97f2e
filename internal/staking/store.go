package staking

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

// Key layout inside the staking namespace.
var (
	prefixRecord = []byte("r/") // r/<addr(20)> -> Record JSON
	prefixEvent  = []byte("e/") // e/<seq(8 BE)> -> Event JSON
	keyState     = []byte("state")
)

// State is the persisted protocol-wide singleton.
type State struct {
	Owner       types.Address `json:"owner"`
	Token       types.TokenID `json:"token"`
	TotalStaked *uint256.Int  `json:"-"`
	Paused      bool          `json:"paused"`
}

type stateJSON struct {
	State
	TotalStaked string `json:"totalStaked"`
}

// Store persists engine state in a key-value database.
type Store struct {
	db storage.DB
}

// NewStore creates a staking store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Snapshot is everything a Store holds.
type Snapshot struct {
	State   *State // nil when nothing was ever written
	Records map[types.Address]Record
	Events  []Event
}

// Load reads the full persisted state.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{Records: make(map[types.Address]Record)}

	data, err := s.db.Get(keyState)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("read state: %w", err)
	default:
		var raw stateJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: state: %v", ErrCorruptState, err)
		}
		st := raw.State
		if st.TotalStaked, err = decodeAmount(raw.TotalStaked); err != nil {
			return nil, fmt.Errorf("%w: total staked: %v", ErrCorruptState, err)
		}
		snap.State = &st
	}

	err = s.db.ForEach(prefixRecord, func(key, value []byte) error {
		if len(key) != len(prefixRecord)+types.AddressSize {
			return fmt.Errorf("%w: record key %x", ErrCorruptState, key)
		}
		var addr types.Address
		copy(addr[:], key[len(prefixRecord):])
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("%w: record %s: %v", ErrCorruptState, addr, err)
		}
		snap.Records[addr] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Big-endian keys iterate in sequence order.
	err = s.db.ForEach(prefixEvent, func(key, value []byte) error {
		var ev Event
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("%w: event %x: %v", ErrCorruptState, key, err)
		}
		snap.Events = append(snap.Events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// writeSet is the staking half of one committed mutation.
type writeSet struct {
	state   State
	account types.Address
	record  *Record // nil leaves records untouched
	event   *Event
}

// stage writes ws into sb under the store's namespace.
func (s *Store) stage(sb *storage.SharedBatch, ws writeSet) error {
	w, err := sb.For(s.db)
	if err != nil {
		return err
	}

	st := stateJSON{State: ws.state, TotalStaked: cloneInt(ws.state.TotalStaked).Dec()}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := w.Put(keyState, data); err != nil {
		return err
	}

	if ws.record != nil {
		if ws.record.isZero() {
			err = w.Delete(recordKey(ws.account))
		} else {
			data, err = json.Marshal(ws.record)
			if err == nil {
				err = w.Put(recordKey(ws.account), data)
			}
		}
		if err != nil {
			return fmt.Errorf("stage record: %w", err)
		}
	}

	if ws.event != nil {
		data, err := json.Marshal(ws.event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := w.Put(eventKey(ws.event.Seq), data); err != nil {
			return err
		}
	}
	return nil
}

func recordKey(addr types.Address) []byte {
	key := make([]byte, len(prefixRecord)+types.AddressSize)
	copy(key, prefixRecord)
	copy(key[len(prefixRecord):], addr[:])
	return key
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(prefixEvent)+8)
	copy(key, prefixEvent)
	binary.BigEndian.PutUint64(key[len(prefixEvent):], seq)
	return key
}

package staking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

// EventType names a committed engine mutation.
type EventType string

// Event types.
const (
	EventStaked            EventType = "Staked"
	EventUnstaked          EventType = "Unstaked"
	EventRewardsClaimed    EventType = "RewardsClaimed"
	EventEmergencyWithdraw EventType = "EmergencyWithdraw"
	EventPaused            EventType = "Paused"
	EventUnpaused          EventType = "Unpaused"
)

// Event is a notification written after a mutation commits.
//
// Amount is the staked amount for Staked, the principal paid out
// (withdrawn minus penalty) for Unstaked, the reward paid for
// RewardsClaimed and the swept balance for EmergencyWithdraw.
// Account is the destination for EmergencyWithdraw and the owner for
// Paused/Unpaused.
type Event struct {
	Seq       uint64
	Type      EventType
	Account   types.Address
	Amount    *uint256.Int
	Rewards   *uint256.Int
	Penalty   *uint256.Int
	Timestamp int64
}

type eventJSON struct {
	Seq       uint64        `json:"seq"`
	Type      EventType     `json:"type"`
	Account   types.Address `json:"account"`
	Amount    string        `json:"amount"`
	Rewards   string        `json:"rewards,omitempty"`
	Penalty   string        `json:"penalty,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// MarshalJSON encodes amounts as decimal strings.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Seq:       e.Seq,
		Type:      e.Type,
		Account:   e.Account,
		Amount:    cloneInt(e.Amount).Dec(),
		Timestamp: e.Timestamp,
	}
	if e.Rewards != nil {
		out.Rewards = e.Rewards.Dec()
	}
	if e.Penalty != nil {
		out.Penalty = e.Penalty.Dec()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := decodeAmount(raw.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*e = Event{
		Seq:       raw.Seq,
		Type:      raw.Type,
		Account:   raw.Account,
		Amount:    amount,
		Timestamp: raw.Timestamp,
	}
	if raw.Rewards != "" {
		if e.Rewards, err = uint256.FromDecimal(raw.Rewards); err != nil {
			return fmt.Errorf("rewards: %w", err)
		}
	}
	if raw.Penalty != "" {
		if e.Penalty, err = uint256.FromDecimal(raw.Penalty); err != nil {
			return fmt.Errorf("penalty: %w", err)
		}
	}
	return nil
}

// EventLog is the append-only, sequence-numbered event history of an
// engine. Sequence numbers start at 1.
type EventLog struct {
	mu     sync.RWMutex
	events []Event
	subs   map[int]func(Event)
	nextID int
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{subs: make(map[int]func(Event))}
}

// NextSeq is the sequence number the next appended event receives.
func (l *EventLog) NextSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events)) + 1
}

// Len returns the number of recorded events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Events returns up to limit events with Seq >= fromSeq. A limit <= 0
// returns everything from fromSeq on.
func (l *EventLog) Events(fromSeq uint64, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if fromSeq == 0 {
		fromSeq = 1
	}
	if fromSeq > uint64(len(l.events)) {
		return []Event{}
	}
	src := l.events[fromSeq-1:]
	if limit > 0 && len(src) > limit {
		src = src[:limit]
	}
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Subscribe registers fn to be called with every event appended after
// this call, in sequence order. fn runs on the committing goroutine and
// must not call mutating engine methods. The returned func unsubscribes.
func (l *EventLog) Subscribe(fn func(Event)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

// Wait blocks until at least one event with Seq >= fromSeq exists or ctx
// ends, then returns up to limit such events.
func (l *EventLog) Wait(ctx context.Context, fromSeq uint64, limit int) ([]Event, error) {
	notify := make(chan struct{}, 1)
	unsubscribe := l.Subscribe(func(ev Event) {
		if ev.Seq >= fromSeq {
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if evs := l.Events(fromSeq, limit); len(evs) > 0 {
		return evs, nil
	}
	select {
	case <-notify:
		return l.Events(fromSeq, limit), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// restore loads persisted history. Only called before the log is shared.
func (l *EventLog) restore(events []Event) error {
	for i, ev := range events {
		if ev.Seq != uint64(i)+1 {
			return fmt.Errorf("%w: event %d has seq %d", ErrCorruptState, i+1, ev.Seq)
		}
	}
	l.events = append(l.events[:0], events...)
	return nil
}

// append records ev and notifies subscribers outside the lock.
func (l *EventLog) append(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	subs := make([]func(Event), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

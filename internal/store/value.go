// Package store implements the Keyspace: the mapping from key to typed,
// optionally-expiring value. It holds no locks of its own — the
// dispatcher package is the sole owner of concurrency control.
package store

import "time"

// Kind tags which variant of Entry is populated.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindHash
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	default:
		return "unknown"
	}
}

// Entry is a stored (kind, value, expiry) triple for a single key.
// Only the field matching Kind is meaningful; the others are left zero.
// Expiry is nil when the entry never expires.
type Entry struct {
	Kind   Kind
	Str    []byte
	List   [][]byte          // head-first: List[0] is the head
	Hash   map[string][]byte
	Expiry *time.Time
}

// Clone returns a copy of e safe to hand outside the keyspace's critical
// section (e.g. for a snapshot document or full-sync record).
func (e *Entry) Clone() *Entry {
	c := &Entry{Kind: e.Kind}
	switch e.Kind {
	case KindString:
		c.Str = append([]byte(nil), e.Str...)
	case KindList:
		c.List = make([][]byte, len(e.List))
		for i, v := range e.List {
			c.List[i] = append([]byte(nil), v...)
		}
	case KindHash:
		c.Hash = make(map[string][]byte, len(e.Hash))
		for f, v := range e.Hash {
			c.Hash[f] = append([]byte(nil), v...)
		}
	}
	if e.Expiry != nil {
		t := *e.Expiry
		c.Expiry = &t
	}
	return c
}

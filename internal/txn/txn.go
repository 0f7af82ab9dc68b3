// Package txn implements per-connection MULTI/EXEC/DISCARD transaction
// state. Each client connection owns exactly one Transaction; queuing and
// execution never cross connections, so unlike the teacher's
// TransactionManager this package needs no client registry or watched-key
// reverse index — WATCH has no counterpart in this command set.
package txn

import (
	"fmt"

	"github.com/ignisdb/ignisdb/internal/dispatcher"
)

// State is the two-state machine a connection's transaction moves through.
type State int

const (
	// Idle accepts any command and executes it immediately.
	Idle State = iota
	// Queuing accepts only further commands (queued, not executed) until
	// EXEC or DISCARD.
	Queuing
)

// Transaction holds one connection's MULTI/EXEC/DISCARD state.
type Transaction struct {
	state State
	queue []dispatcher.Command
}

// New returns an idle transaction.
func New() *Transaction {
	return &Transaction{state: Idle}
}

// InProgress reports whether MULTI has been called without a matching
// EXEC or DISCARD yet.
func (t *Transaction) InProgress() bool {
	return t.state == Queuing
}

// Multi begins queuing. Nesting MULTI is an error, matching the original
// source's exact message.
func (t *Transaction) Multi() error {
	if t.state == Queuing {
		return fmt.Errorf("MULTI calls can not be nested")
	}
	t.state = Queuing
	t.queue = t.queue[:0]
	return nil
}

// Enqueue appends a command to the pending batch. Callers must check
// InProgress first; Enqueue itself doesn't validate state.
func (t *Transaction) Enqueue(name string, args []string) {
	t.queue = append(t.queue, dispatcher.Command{Name: name, Args: args})
}

// Discard abandons a queued transaction without executing anything.
func (t *Transaction) Discard() error {
	if t.state != Queuing {
		return fmt.Errorf("DISCARD without MULTI")
	}
	t.state = Idle
	t.queue = nil
	return nil
}

// Exec runs the queued batch under one dispatcher lock acquisition through
// d.ExecuteBatch and resets to Idle regardless of outcome. A structural
// error anywhere in the batch aborts the whole transaction before anything
// is applied: d.ExecuteBatch pre-validates every queued command first. A
// wrong-kind error found while applying stops the batch without undoing
// the commands already applied.
func (t *Transaction) Exec(d *dispatcher.Dispatcher) ([]interface{}, error) {
	if t.state != Queuing {
		return nil, fmt.Errorf("EXEC without MULTI")
	}
	cmds := t.queue
	t.state = Idle
	t.queue = nil

	if len(cmds) == 0 {
		return []interface{}{}, nil
	}
	return d.ExecuteBatch(cmds)
}

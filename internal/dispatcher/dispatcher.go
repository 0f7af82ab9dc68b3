// Package dispatcher implements the single mutation path for the
// keyspace: the command catalog, the global mutual-exclusion guard, and
// the hooks that hand successful writes to the AOF writer and the
// replication fan-out while that guard is still held.
package dispatcher

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ignisdb/ignisdb/internal/store"
)

// SimpleString marks a result that must be framed as a RESP simple
// string ("+OK\r\n") rather than a bulk string, e.g. "OK" and "QUEUED".
type SimpleString string

const (
	OK     SimpleString = "OK"
	Queued SimpleString = "QUEUED"
)

// String satisfies fmt.Stringer so the protocol codec can recognize a
// SimpleString result without importing this package.
func (s SimpleString) String() string { return string(s) }

// Command is one entry of a queued transaction batch.
type Command struct {
	Name string
	Args []string
}

// AOFWriter is the narrow interface the dispatcher needs from
// internal/aof.Writer. Declaring it here (rather than importing the aof
// package) keeps the dispatcher's only internal dependency internal/store.
type AOFWriter interface {
	WriteCommand(args []string) error
}

// writeSet is the set of commands subject to AOF and replication.
var writeSet = map[string]bool{
	"SET":    true,
	"DELETE": true,
	"EXPIRE": true,
	"LPUSH":  true,
	"HSET":   true,
}

// IsWriteCommand reports whether cmd (already upper-cased or not)
// belongs to the write-set that is journaled and propagated.
func IsWriteCommand(cmd string) bool {
	return writeSet[strings.ToUpper(cmd)]
}

// Dispatcher is the sole owner of the keyspace's critical section.
type Dispatcher struct {
	mu  sync.Mutex
	ks  *store.Keyspace
	log *zap.Logger

	aof       AOFWriter
	propagate func(name string, args []string)

	// suppressPersist is set for the duration of AOF replay at startup:
	// commands are re-applied to rebuild state but must not be re-appended
	// to the very file they came from, nor propagated to replicas that
	// haven't attached yet.
	suppressPersist bool
}

// New builds a Dispatcher over ks. AOF and replication hooks are wired
// in afterward via SetAOF/SetPropagate — both are optional.
func New(ks *store.Keyspace, log *zap.Logger) *Dispatcher {
	return &Dispatcher{ks: ks, log: log}
}

// SetAOF wires a durable write path into every future successful write.
func (d *Dispatcher) SetAOF(w AOFWriter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aof = w
}

// SetPropagate wires a replication fan-out into every future successful
// write (standalone or batch).
func (d *Dispatcher) SetPropagate(fn func(name string, args []string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.propagate = fn
}

// SetSuppressPersist toggles AOF/replication emission independent of the
// command results themselves. Used by internal/aofreplay while rebuilding
// state from the AOF file at startup.
func (d *Dispatcher) SetSuppressPersist(b bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suppressPersist = b
}

// Execute runs a single standalone command under the lock and, on a
// successful write, emits its AOF record and replica fan-out before
// releasing it.
func (d *Dispatcher) Execute(name string, args []string) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	var writes []Command
	res, err := d.executeOneLocked(name, args, now, &writes)
	if err != nil {
		return nil, err
	}
	d.flushWritesLocked(writes)
	return res, nil
}

// ExecuteBatch runs every command in cmds against the live keyspace
// under a single lock acquisition, in order. If any command errors, the
// whole batch aborts immediately: nothing executed so far is undone, but
// no AOF record or replication traffic is emitted for the batch and a
// single error is returned. On success, every batch write is flushed to
// AOF and replicas, in original order, before the lock is released.
func (d *Dispatcher) ExecuteBatch(cmds []Command) ([]interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Recommended refinement from the design notes: reject the whole
	// batch up front on structural errors (unknown command, wrong arg
	// count, non-integer argument) before applying anything, so a
	// guaranteed-to-fail command later in the queue can't leave an
	// earlier command's mutation stranded.
	for _, c := range cmds {
		if err := validateArgs(strings.ToUpper(c.Name), c.Args); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	var writes []Command
	results := make([]interface{}, 0, len(cmds))
	for _, c := range cmds {
		res, err := d.executeOneLocked(c.Name, c.Args, now, &writes)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	d.flushWritesLocked(writes)
	return results, nil
}

// WithLock runs fn with the keyspace's critical section held, having
// first swept expired entries. It is the hook replication full-sync and
// periodic snapshotting use to get a consistent read of the keyspace
// without racing concurrent writes.
func (d *Dispatcher) WithLock(fn func(ks *store.Keyspace)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ks.SweepExpired(time.Now())
	fn(d.ks)
}

func (d *Dispatcher) flushWritesLocked(writes []Command) {
	if d.suppressPersist || len(writes) == 0 {
		return
	}
	for _, w := range writes {
		if d.aof != nil {
			full := append([]string{w.Name}, w.Args...)
			if err := d.aof.WriteCommand(full); err != nil {
				d.log.Error("AOF write failed; write already applied", zap.String("command", w.Name), zap.Error(err))
			}
		}
		if d.propagate != nil {
			d.propagate(w.Name, w.Args)
		}
	}
}

func (d *Dispatcher) executeOneLocked(name string, args []string, now time.Time, writes *[]Command) (interface{}, error) {
	upper := strings.ToUpper(name)
	res, err := d.dispatch(upper, args, now)
	if err != nil {
		return nil, err
	}
	if writeSet[upper] {
		*writes = append(*writes, Command{Name: upper, Args: args})
	}
	return res, nil
}

func (d *Dispatcher) dispatch(upper string, args []string, now time.Time) (interface{}, error) {
	switch upper {
	case "SET":
		return d.execSet(args, now)
	case "GET":
		return d.execGet(args, now)
	case "DELETE":
		return d.execDelete(args)
	case "EXPIRE":
		return d.execExpire(args, now)
	case "LPUSH":
		return d.execLPush(args, now)
	case "LRANGE":
		return d.execLRange(args, now)
	case "HSET":
		return d.execHSet(args, now)
	case "HGET":
		return d.execHGet(args, now)
	default:
		return nil, fmt.Errorf("unknown command '%s'", upper)
	}
}

func errWrongArgs(cmd string) error {
	return fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(cmd))
}

func errNotInt() error {
	return fmt.Errorf("value is not an integer or out of range")
}

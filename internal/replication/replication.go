// Package replication implements the master side of single-master
// asynchronous replication (C8): full-sync synthesis for a newly attached
// replica, live command fan-out after every successful write, and the
// replica-side reconnect/apply loop (replica.go). There is no partial
// resync, no backlog, and no quorum — a replica falling behind is
// recovered only by reconnect and a fresh full sync, per spec.
package replication

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ignisdb/ignisdb/internal/dispatcher"
	"github.com/ignisdb/ignisdb/internal/protocol"
	"github.com/ignisdb/ignisdb/internal/store"
)

// Replica is one attached downstream connection a master fans writes out
// to. The connection itself is owned by the server package's connection
// handler, which hands the writer off here and stops treating the socket
// as a client once REPLICAOF is accepted.
type Replica struct {
	id     string
	conn   net.Conn
	writer *bufio.Writer
	mu     sync.Mutex
}

// Manager owns the live set of attached replicas on a master. Every
// mutation of the set, and every send to a replica, happens either under
// the dispatcher's lock (full sync, attach) or serialized through this
// manager's own mutex (live fan-out), matching the ordering guarantee in
// spec.md §5: full-sync-snapshot-at-T followed by commands-applied-after-T.
type Manager struct {
	mu       sync.Mutex
	replicas map[string]*Replica
	log      *zap.Logger
}

// NewManager returns an empty replica set.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{replicas: make(map[string]*Replica), log: log}
}

// Count reports the number of currently attached replicas.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replicas)
}

// CloseAll closes every attached replica connection, used during graceful
// server shutdown alongside closing the listener and the AOF file.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.replicas {
		r.conn.Close()
		delete(m.replicas, id)
	}
}

// Attach performs the full-sync handshake and adds conn to the live
// replica set. It takes d.WithLock itself (so it must not be called with
// the dispatcher's lock already held), making the synthesized command
// stream and the point at which this replica starts receiving live
// propagation atomic with respect to concurrent writers.
func Attach(d *dispatcher.Dispatcher, m *Manager, conn net.Conn) {
	writer := bufio.NewWriter(conn)
	id := uuid.NewString()

	d.WithLock(func(ks *store.Keyspace) {
		for key, e := range ks.Snapshot() {
			for _, rec := range fullSyncRecords(key, e) {
				writer.Write(protocol.EncodeCommandRecord(rec))
			}
		}
		writer.Flush()

		m.mu.Lock()
		m.replicas[id] = &Replica{id: id, conn: conn, writer: writer}
		m.mu.Unlock()
	})

	m.log.Info("replica attached", zap.String("replica_id", id), zap.String("addr", conn.RemoteAddr().String()))
}

// fullSyncRecords synthesizes the command(s) that reproduce key's current
// entry: SET for strings, one reversed LPUSH for lists (so replay
// restores the original head order), one HSET per field for hashes, and
// a trailing EXPIRE if the entry has a future expiry.
func fullSyncRecords(key string, e *store.Entry) [][]string {
	var out [][]string
	switch e.Kind {
	case store.KindString:
		out = append(out, []string{"SET", key, string(e.Str)})
	case store.KindList:
		if len(e.List) > 0 {
			args := make([]string, 0, len(e.List)+2)
			args = append(args, "LPUSH", key)
			for i := len(e.List) - 1; i >= 0; i-- {
				args = append(args, string(e.List[i]))
			}
			out = append(out, args)
		}
	case store.KindHash:
		for field, v := range e.Hash {
			out = append(out, []string{"HSET", key, field, string(v)})
		}
	}
	if e.Expiry != nil {
		if secs := int(time.Until(*e.Expiry).Seconds()); secs > 0 {
			out = append(out, []string{"EXPIRE", key, itoa(secs)})
		}
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Propagate serializes name+args once and broadcasts it to every live
// replica, dropping any whose write or flush fails. The dispatcher calls
// this (via SetPropagate) while still holding its lock, so live
// propagation order always matches apply order.
func (m *Manager) Propagate(name string, args []string) {
	record := protocol.EncodeCommandRecord(append([]string{name}, args...))

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.replicas {
		r.mu.Lock()
		_, err := r.writer.Write(record)
		if err == nil {
			err = r.writer.Flush()
		}
		r.mu.Unlock()
		if err != nil {
			m.log.Warn("dropping replica after write failure", zap.String("replica_id", id), zap.Error(err))
			r.conn.Close()
			delete(m.replicas, id)
		}
	}
}

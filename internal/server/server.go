// Package server implements the Connection Handler (C7): a cooperative
// per-client loop that reads a frame, parses it, routes it through the
// transaction engine or straight to the dispatcher, and writes one framed
// reply — the same read/dispatch/write shape as the teacher's
// CommandHandler.Handle, minus pipelining and every command family
// outside spec.md's catalog.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ignisdb/ignisdb/internal/config"
	"github.com/ignisdb/ignisdb/internal/dispatcher"
	"github.com/ignisdb/ignisdb/internal/protocol"
	"github.com/ignisdb/ignisdb/internal/replication"
	"github.com/ignisdb/ignisdb/internal/txn"
)

// Server accepts client connections and runs the per-connection loop
// against a shared Dispatcher. On a master it also owns the Replication
// Manager a client hands off to via REPLICAOF.
type Server struct {
	role       config.Role
	dispatcher *dispatcher.Dispatcher
	replMgr    *replication.Manager
	log        *zap.Logger

	listener net.Listener
	ready    chan struct{} // closed once listener is bound; lets tests discover the ephemeral port
	conns    sync.Map      // net.Conn -> struct{}, for graceful shutdown
	wg       sync.WaitGroup
	closing  atomic.Bool
}

// New builds a Server. replMgr is nil on a replica (a replica never
// accepts REPLICAOF from a client of its own).
func New(role config.Role, d *dispatcher.Dispatcher, replMgr *replication.Manager, log *zap.Logger) *Server {
	return &Server{role: role, dispatcher: d, replMgr: replMgr, log: log, ready: make(chan struct{})}
}

// Addr returns the bound listener's address. Callers must wait for Ready
// to close first.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Ready closes once the listener is bound, letting a caller that asked
// for an ephemeral port (":0") discover the assigned address via Addr.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Serve listens on addr and accepts connections until ctx is canceled or
// Close is called. It returns once the listener is closed and every
// in-flight connection has finished.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	close(s.ready)
	s.log.Info("listening", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				break
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}
		s.conns.Store(conn, struct{}{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

// Close stops accepting new connections and closes every tracked
// connection so in-flight reads unblock. Already-dispatched commands are
// allowed to finish (they hold the dispatcher's lock independently).
func (s *Server) Close() {
	if s.closing.CompareAndSwap(false, true) {
		if s.listener != nil {
			s.listener.Close()
		}
		s.conns.Range(func(key, _ interface{}) bool {
			key.(net.Conn).Close()
			return true
		})
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	closeConn := true
	defer func() {
		s.conns.Delete(conn)
		if closeConn {
			conn.Close()
		}
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	tx := txn.New()

	for {
		args, err := protocol.ParseInline(reader)
		if err != nil {
			if errors.Is(err, protocol.ErrEmptyCommand) {
				writer.Write(protocol.EncodeError("ERR", err.Error()))
				writer.Flush()
				continue
			}
			if err != io.EOF {
				s.log.Debug("connection read error", zap.Error(err))
			}
			return
		}

		name := strings.ToUpper(args[0])
		cmdArgs := args[1:]

		if name == "REPLICAOF" {
			if s.role != config.RoleMaster || s.replMgr == nil {
				writer.Write(protocol.EncodeError("ERR", "REPLICAOF is only accepted by a master"))
				writer.Flush()
				continue
			}
			// Handing the connection to the Replication Manager: this
			// goroutine's job as a client handler ends here, and the
			// socket must outlive this function's deferred close.
			closeConn = false
			go replication.Attach(s.dispatcher, s.replMgr, conn)
			return
		}

		if s.role == config.RoleReplica && (dispatcher.IsWriteCommand(name) || name == "MULTI") {
			writer.Write(protocol.EncodeError("READONLY", "You can't write against a read-only replica."))
			writer.Flush()
			continue
		}

		result, cmdErr := s.dispatch(tx, name, cmdArgs)
		writer.Write(protocol.EncodeResult(result, cmdErr))
		writer.Flush()
	}
}

// dispatch routes one parsed command through the transaction state
// machine (C3) or directly to the dispatcher (C2), matching spec.md §4.3:
// MULTI/EXEC/DISCARD always take effect immediately regardless of queuing
// state; everything else is queued while a transaction is open.
func (s *Server) dispatch(tx *txn.Transaction, name string, args []string) (interface{}, error) {
	switch name {
	case "MULTI":
		if err := tx.Multi(); err != nil {
			return nil, err
		}
		return dispatcher.OK, nil
	case "DISCARD":
		if err := tx.Discard(); err != nil {
			return nil, err
		}
		return dispatcher.OK, nil
	case "EXEC":
		results, err := tx.Exec(s.dispatcher)
		if err != nil {
			return nil, err
		}
		return results, nil
	}

	if tx.InProgress() {
		tx.Enqueue(name, args)
		return dispatcher.Queued, nil
	}
	return s.dispatcher.Execute(name, args)
}

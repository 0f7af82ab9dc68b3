package replication

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ignisdb/ignisdb/internal/dispatcher"
	"github.com/ignisdb/ignisdb/internal/protocol"
)

// reconnectBackoff is the fixed delay between reconnect attempts, per
// spec.md §4.8 ("waits a fixed backoff (5 seconds) and retries").
const reconnectBackoff = 5 * time.Second

// RunReplicaLoop connects to the configured master, announces itself with
// REPLICAOF, and feeds every command the master sends into d with
// persistence disabled (a replica never journals or re-propagates what it
// applies — see spec.md §4.8). On disconnect it waits reconnectBackoff and
// retries until ctx is canceled.
func RunReplicaLoop(ctx context.Context, masterHost string, masterPort int, listeningPort int, d *dispatcher.Dispatcher, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := runOnce(ctx, masterHost, masterPort, listeningPort, d, log); err != nil {
			log.Warn("replica connection to master lost", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func runOnce(ctx context.Context, host string, port int, listeningPort int, d *dispatcher.Dispatcher, log *zap.Logger) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial master %s: %w", addr, err)
	}
	defer conn.Close()

	// Close the connection on cancellation so the blocking read below
	// returns and the loop can exit.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	log.Info("connected to master", zap.String("addr", addr))

	// The master's Connection Handler reads every inbound connection with
	// the inline text parser (spec.md §4.6), not the RESP-Array decoder —
	// that one's reserved for the replication stream itself. The handshake
	// has to speak the protocol the listener on the other end is actually
	// parsing.
	writer := bufio.NewWriter(conn)
	if _, err := fmt.Fprintf(writer, "REPLICAOF %d %d\r\n", listeningPort, port); err != nil {
		return fmt.Errorf("send REPLICAOF handshake: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush REPLICAOF handshake: %w", err)
	}

	d.SetSuppressPersist(true)
	defer d.SetSuppressPersist(false)

	reader := bufio.NewReader(conn)
	applied := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		args, err := protocol.ParseRESPCommand(reader)
		if err != nil {
			return fmt.Errorf("read from master after %d commands: %w", applied, err)
		}
		if len(args) == 0 {
			continue
		}
		if _, err := d.Execute(args[0], args[1:]); err != nil {
			log.Warn("failed to apply command from master", zap.String("command", args[0]), zap.Error(err))
			continue
		}
		applied++
	}
}

package replication

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ignisdb/ignisdb/internal/dispatcher"
	"github.com/ignisdb/ignisdb/internal/protocol"
	"github.com/ignisdb/ignisdb/internal/store"
)

func TestAttachSendsFullSyncThenLiveWrites(t *testing.T) {
	ks := store.New()
	d := dispatcher.New(ks, zap.NewNop())
	_, err := d.Execute("SET", []string{"foo", "bar"})
	require.NoError(t, err)
	_, err = d.Execute("LPUSH", []string{"ls", "a", "b", "c"})
	require.NoError(t, err)

	m := NewManager(zap.NewNop())
	d.SetPropagate(m.Propagate)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	go Attach(d, m, serverConn)

	reader := bufio.NewReader(clientConn)
	seen := map[string][]string{}
	for i := 0; i < 2; i++ {
		args, err := protocol.ParseRESPCommand(reader)
		require.NoError(t, err)
		seen[args[0]+":"+args[1]] = args
	}

	set, ok := seen["SET:foo"]
	require.True(t, ok)
	assert.Equal(t, []string{"SET", "foo", "bar"}, set)

	lpush, ok := seen["LPUSH:ls"]
	require.True(t, ok)
	assert.Equal(t, []string{"LPUSH", "ls", "a", "b", "c"}, lpush, "full sync must emit the reverse of the stored order so replay restores the original head")

	// Now a live write after full sync completed. The broadcast Write
	// blocks on net.Pipe until read, so issue it concurrently with the
	// read that drains it.
	execErr := make(chan error, 1)
	go func() {
		_, err := d.Execute("SET", []string{"live", "1"})
		execErr <- err
	}()

	args, err := protocol.ParseRESPCommand(reader)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "live", "1"}, args)
	require.NoError(t, <-execErr)
}

func TestAttachEmitsExpireForFutureTTLOnly(t *testing.T) {
	ks := store.New()
	d := dispatcher.New(ks, zap.NewNop())
	_, err := d.Execute("SET", []string{"k", "v", "EX", "100"})
	require.NoError(t, err)

	m := NewManager(zap.NewNop())
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	go Attach(d, m, serverConn)

	reader := bufio.NewReader(clientConn)
	var records [][]string
	for i := 0; i < 2; i++ {
		args, err := protocol.ParseRESPCommand(reader)
		require.NoError(t, err)
		records = append(records, args)
	}
	assert.Equal(t, "SET", records[0][0])
	assert.Equal(t, "EXPIRE", records[1][0])
	assert.Equal(t, "k", records[1][1])
}

func TestPropagateDropsDeadReplica(t *testing.T) {
	m := NewManager(zap.NewNop())
	serverConn, clientConn := net.Pipe()
	clientConn.Close()
	serverConn.Close()

	m.mu.Lock()
	m.replicas["dead"] = &Replica{id: "dead", conn: serverConn, writer: bufio.NewWriter(serverConn)}
	m.mu.Unlock()

	m.Propagate("SET", []string{"k", "v"})

	assert.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 5*time.Millisecond)
}

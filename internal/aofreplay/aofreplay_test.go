package aofreplay

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ignisdb/ignisdb/internal/aof"
	"github.com/ignisdb/ignisdb/internal/dispatcher"
	"github.com/ignisdb/ignisdb/internal/store"
)

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	d := dispatcher.New(store.New(), zap.NewNop())
	err := Load(filepath.Join(t.TempDir(), "absent.aof"), d, zap.NewNop())
	require.NoError(t, err)
}

func TestLoadReplaysCommandsWithoutReJournaling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.aof")
	w, err := aof.Open(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteCommand([]string{"SET", "foo", "bar"}))
	require.NoError(t, w.WriteCommand([]string{"LPUSH", "ls", "a", "b"}))
	require.NoError(t, w.Close())

	ks := store.New()
	d := dispatcher.New(ks, zap.NewNop())
	var recorded [][]string
	d.SetAOF(recorderAOF(func(args []string) { recorded = append(recorded, args) }))

	require.NoError(t, Load(path, d, zap.NewNop()))

	res, err := d.Execute("GET", []string{"foo"})
	require.NoError(t, err)
	assert.Equal(t, "bar", res)

	res, err = d.Execute("LRANGE", []string{"ls", "0", "-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, res)

	assert.Empty(t, recorded, "replay must not re-append records to the file it read them from")
}

func TestLoadSkipsRecordsThatFailToReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.aof")
	w, err := aof.Open(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteCommand([]string{"SET", "good", "1"}))
	require.NoError(t, w.WriteCommand([]string{"LPUSH", "good", "x"})) // wrong-type, fails at replay
	require.NoError(t, w.Close())

	d := dispatcher.New(store.New(), zap.NewNop())
	require.NoError(t, Load(path, d, zap.NewNop()))

	res, err := d.Execute("GET", []string{"good"})
	require.NoError(t, err)
	assert.Equal(t, "1", res, "a failing record must not corrupt the preceding successfully-replayed state")
}

type recorderAOF func(args []string)

func (r recorderAOF) WriteCommand(args []string) error {
	r(args)
	return nil
}

// Package aofreplay rebuilds keyspace state from an append-only file at
// startup. Neither the original source nor the teacher's own reader
// wired this into a working boot path (the teacher's replay used the
// processor's command channel directly and never suppressed re-journaling);
// this package closes that gap against the dispatcher the rest of the
// module actually runs on.
package aofreplay

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/ignisdb/ignisdb/internal/dispatcher"
	"github.com/ignisdb/ignisdb/internal/protocol"
)

// Load replays every command record in path through d, in order. A
// missing file is not an error: it means this is the first run. Replay
// runs with AOF/replication emission suppressed, since every command
// here is already durable in the very file being read and no replica is
// attached yet.
func Load(path string, d *dispatcher.Dispatcher, log *zap.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open AOF file for replay: %w", err)
	}
	defer file.Close()

	d.SetSuppressPersist(true)
	defer d.SetSuppressPersist(false)

	reader := bufio.NewReader(file)
	count := 0
	for {
		args, err := protocol.ParseRESPCommand(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("corrupt AOF record after %d commands: %w", count, err)
		}
		if len(args) == 0 {
			continue
		}
		if _, err := d.Execute(args[0], args[1:]); err != nil {
			log.Warn("skipping AOF record that failed to replay",
				zap.String("command", args[0]), zap.Error(err))
			continue
		}
		count++
	}

	log.Info("AOF replay complete", zap.Int("commands", count), zap.String("path", path))
	return nil
}

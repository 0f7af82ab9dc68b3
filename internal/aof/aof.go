// Package aof implements the append-only file: a line-buffered journal of
// every successful write-set command, flushed to disk after each write so
// a crash loses at most the OS's own buffering, never a command IgnisDB
// itself believed durable.
package aof

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/ignisdb/ignisdb/internal/protocol"
)

// Writer appends RESP-Array command records to a file, flushing (not
// fsyncing) after every write. It satisfies dispatcher.AOFWriter.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// Open opens path for appending, creating it if absent.
func Open(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open AOF file: %w", err)
	}
	return &Writer{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// WriteCommand appends one command record and flushes it to the OS.
func (w *Writer) WriteCommand(args []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(protocol.EncodeCommandRecord(args)); err != nil {
		return fmt.Errorf("write AOF record: %w", err)
	}
	return w.writer.Flush()
}

// Close flushes any buffered bytes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

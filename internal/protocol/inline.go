// Package protocol implements IgnisDB's wire codec: the simplified
// inline command form clients speak inbound, RESP framing for replies,
// and a streaming RESP-Array decoder used both for AOF/command records
// and for the replica's connection to its master.
package protocol

import (
	"bufio"
	"errors"
	"strings"
)

// ErrEmptyCommand distinguishes a protocol-level "empty frame" violation
// from a genuine I/O failure on the connection: per spec.md §4.6/§7 an
// empty frame gets a -ERR reply and the connection stays open, whereas an
// I/O error is fatal and closes the socket.
var ErrEmptyCommand = errors.New("empty command")

// ParseInline reads one client command frame: a single line, whitespace
// separated, first token is the command name. It buffers on reader
// rather than assuming one command arrives per underlying socket read,
// so a command split across TCP segments or several coalesced into one
// read are both framed correctly.
func ParseInline(reader *bufio.Reader) ([]string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	return fields, nil
}

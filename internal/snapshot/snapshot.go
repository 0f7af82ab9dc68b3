// Package snapshot implements periodic and startup persistence of the
// whole keyspace to a single JSON document: an object mapping each key to
// a [kind, payload, expiry] triple, matching the document shape the
// original source's json.dump(self._data) produced so an existing
// snapshot file from that implementation loads unchanged.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ignisdb/ignisdb/internal/dispatcher"
	"github.com/ignisdb/ignisdb/internal/store"
)

// doc is the on-disk shape: key -> [kind, payload, expiry-or-null].
// kind is "string", "list", or "hash"; payload is a bulk string, an array
// of bulk strings, or a string-to-string object to match; expiry is Unix
// seconds as a float, or null.
type doc map[string]json.RawMessage

func kindName(k store.Kind) string {
	switch k {
	case store.KindString:
		return "string"
	case store.KindList:
		return "list"
	case store.KindHash:
		return "hash"
	default:
		return "unknown"
	}
}

func kindFromName(name string) (store.Kind, error) {
	switch name {
	case "string":
		return store.KindString, nil
	case "list":
		return store.KindList, nil
	case "hash":
		return store.KindHash, nil
	default:
		return 0, fmt.Errorf("unknown snapshot kind %q", name)
	}
}

func encodeEntry(e *store.Entry) ([]byte, error) {
	var payload interface{}
	switch e.Kind {
	case store.KindString:
		payload = string(e.Str)
	case store.KindList:
		items := make([]string, len(e.List))
		for i, v := range e.List {
			items[i] = string(v)
		}
		payload = items
	case store.KindHash:
		fields := make(map[string]string, len(e.Hash))
		for k, v := range e.Hash {
			fields[k] = string(v)
		}
		payload = fields
	}

	var expiry interface{}
	if e.Expiry != nil {
		expiry = float64(e.Expiry.UnixNano()) / float64(time.Second)
	}

	triple := [3]interface{}{kindName(e.Kind), payload, expiry}
	return json.Marshal(triple)
}

func decodeEntry(raw json.RawMessage) (*store.Entry, error) {
	var triple [3]json.RawMessage
	if err := json.Unmarshal(raw, &triple); err != nil {
		return nil, fmt.Errorf("decode entry triple: %w", err)
	}

	var kindStr string
	if err := json.Unmarshal(triple[0], &kindStr); err != nil {
		return nil, fmt.Errorf("decode entry kind: %w", err)
	}
	kind, err := kindFromName(kindStr)
	if err != nil {
		return nil, err
	}

	e := &store.Entry{Kind: kind}
	switch kind {
	case store.KindString:
		var s string
		if err := json.Unmarshal(triple[1], &s); err != nil {
			return nil, fmt.Errorf("decode string payload: %w", err)
		}
		e.Str = []byte(s)
	case store.KindList:
		var items []string
		if err := json.Unmarshal(triple[1], &items); err != nil {
			return nil, fmt.Errorf("decode list payload: %w", err)
		}
		e.List = make([][]byte, len(items))
		for i, v := range items {
			e.List[i] = []byte(v)
		}
	case store.KindHash:
		var fields map[string]string
		if err := json.Unmarshal(triple[1], &fields); err != nil {
			return nil, fmt.Errorf("decode hash payload: %w", err)
		}
		e.Hash = make(map[string][]byte, len(fields))
		for k, v := range fields {
			e.Hash[k] = []byte(v)
		}
	}

	var expirySecs *float64
	if err := json.Unmarshal(triple[2], &expirySecs); err != nil {
		return nil, fmt.Errorf("decode expiry: %w", err)
	}
	if expirySecs != nil {
		t := time.Unix(0, int64(*expirySecs*float64(time.Second)))
		e.Expiry = &t
	}
	return e, nil
}

// Save serializes the live keyspace to path as a JSON document. Callers
// must already hold the dispatcher's lock (via WithLock) so the map
// iterated here can't mutate mid-write.
func Save(ks *store.Keyspace, path string) error {
	out := make(doc, ks.Len())
	for key, e := range ks.Snapshot() {
		raw, err := encodeEntry(e)
		if err != nil {
			return fmt.Errorf("encode key %q: %w", key, err)
		}
		out[key] = raw
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a JSON snapshot document from path into ks. A missing file
// is not an error — it means this is the first run.
func Load(path string, ks *store.Keyspace) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot file: %w", err)
	}

	var parsed doc
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse snapshot document: %w", err)
	}

	entries := make(map[string]*store.Entry, len(parsed))
	for key, raw := range parsed {
		e, err := decodeEntry(raw)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		entries[key] = e
	}
	ks.Replace(entries)
	return nil
}

// RunPeriodic saves the keyspace to path every interval until ctx is
// canceled, sweeping expired keys first so the persisted document never
// contains entries a reader would see as already gone.
func RunPeriodic(ctx context.Context, interval time.Duration, d *dispatcher.Dispatcher, path string, log *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var saveErr error
			d.WithLock(func(ks *store.Keyspace) {
				saveErr = Save(ks, path)
			})
			if saveErr != nil {
				log.Error("periodic snapshot failed", zap.Error(saveErr))
				continue
			}
			log.Info("snapshot saved", zap.String("path", path))
		}
	}
}

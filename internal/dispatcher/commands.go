package dispatcher

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignisdb/ignisdb/internal/store"
)

// validateArgs performs the structural checks (command recognized,
// argument count, integer-shaped arguments) that don't depend on the
// keyspace's current contents. ExecuteBatch runs this over every queued
// command before applying any of them, strengthening the otherwise
// stop-on-first-failure transaction semantics.
func validateArgs(upper string, args []string) error {
	switch upper {
	case "SET":
		if len(args) != 2 && len(args) != 4 {
			return errWrongArgs("set")
		}
		if len(args) == 4 {
			if strings.ToUpper(args[2]) != "EX" {
				return fmt.Errorf("syntax error")
			}
			secs, err := strconv.Atoi(args[3])
			if err != nil {
				return errNotInt()
			}
			if secs < 0 {
				return fmt.Errorf("invalid expire time in 'set' command")
			}
		}
	case "GET":
		if len(args) != 1 {
			return errWrongArgs("get")
		}
	case "DELETE":
		if len(args) != 1 {
			return errWrongArgs("delete")
		}
	case "EXPIRE":
		if len(args) != 2 {
			return errWrongArgs("expire")
		}
		if _, err := strconv.Atoi(args[1]); err != nil {
			return errNotInt()
		}
	case "LPUSH":
		if len(args) < 2 {
			return errWrongArgs("lpush")
		}
	case "LRANGE":
		if len(args) != 3 {
			return errWrongArgs("lrange")
		}
		if _, err := strconv.Atoi(args[1]); err != nil {
			return errNotInt()
		}
		if _, err := strconv.Atoi(args[2]); err != nil {
			return errNotInt()
		}
	case "HSET":
		if len(args) != 3 {
			return errWrongArgs("hset")
		}
	case "HGET":
		if len(args) != 2 {
			return errWrongArgs("hget")
		}
	default:
		return fmt.Errorf("unknown command '%s'", upper)
	}
	return nil
}

// execSet implements SET key value [EX seconds]. It unconditionally
// replaces any previous value and any prior expiry (invariant 3).
func (d *Dispatcher) execSet(args []string, now time.Time) (interface{}, error) {
	if len(args) != 2 && len(args) != 4 {
		return nil, errWrongArgs("set")
	}
	key, value := args[0], args[1]

	var expiry *time.Time
	if len(args) == 4 {
		if strings.ToUpper(args[2]) != "EX" {
			return nil, fmt.Errorf("syntax error")
		}
		secs, err := strconv.Atoi(args[3])
		if err != nil {
			return nil, errNotInt()
		}
		if secs < 0 {
			return nil, fmt.Errorf("invalid expire time in 'set' command")
		}
		t := now.Add(time.Duration(secs) * time.Second)
		expiry = &t
	}

	d.ks.Set(key, &store.Entry{Kind: store.KindString, Str: []byte(value), Expiry: expiry})
	return OK, nil
}

// execGet implements GET key.
func (d *Dispatcher) execGet(args []string, now time.Time) (interface{}, error) {
	if len(args) != 1 {
		return nil, errWrongArgs("get")
	}
	key := args[0]
	d.ks.ExpireIfNeeded(key, now)

	e, ok := d.ks.Get(key)
	if !ok {
		return nil, nil
	}
	if e.Kind != store.KindString {
		return nil, store.NewWrongType()
	}
	return string(e.Str), nil
}

// execDelete implements DELETE key. It returns 1 whenever the key was
// present just before this call — whether live or only logically present
// (already past its expiry) — and 0 otherwise.
func (d *Dispatcher) execDelete(args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, errWrongArgs("delete")
	}
	if d.ks.Delete(args[0]) {
		return 1, nil
	}
	return 0, nil
}

// execExpire implements EXPIRE key seconds. It preserves the entry's kind
// and payload (invariant 4), only updating the expiry instant.
func (d *Dispatcher) execExpire(args []string, now time.Time) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongArgs("expire")
	}
	key := args[0]
	secs, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, errNotInt()
	}
	d.ks.ExpireIfNeeded(key, now)

	e, ok := d.ks.Get(key)
	if !ok {
		return 0, nil
	}
	t := now.Add(time.Duration(secs) * time.Second)
	e.Expiry = &t
	return 1, nil
}

// execLPush implements LPUSH key v1 [v2 ...]. Arguments are prepended
// left-to-right, so the resulting head order is v_n, ..., v_1, oldhead...
func (d *Dispatcher) execLPush(args []string, now time.Time) (interface{}, error) {
	if len(args) < 2 {
		return nil, errWrongArgs("lpush")
	}
	key, values := args[0], args[1:]
	d.ks.ExpireIfNeeded(key, now)

	prefix := make([][]byte, len(values))
	for i, v := range values {
		prefix[len(values)-1-i] = []byte(v)
	}

	e, ok := d.ks.Get(key)
	if !ok {
		d.ks.Set(key, &store.Entry{Kind: store.KindList, List: prefix})
		return len(prefix), nil
	}
	if e.Kind != store.KindList {
		return nil, store.NewWrongType()
	}
	e.List = append(prefix, e.List...)
	return len(e.List), nil
}

// execLRange implements LRANGE key start stop. stop of -1 means "through
// the end"; out-of-range indices clamp to an empty result.
func (d *Dispatcher) execLRange(args []string, now time.Time) (interface{}, error) {
	if len(args) != 3 {
		return nil, errWrongArgs("lrange")
	}
	key := args[0]
	start, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, errNotInt()
	}
	stop, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, errNotInt()
	}
	d.ks.ExpireIfNeeded(key, now)

	e, ok := d.ks.Get(key)
	if !ok {
		return []string{}, nil
	}
	if e.Kind != store.KindList {
		return nil, store.NewWrongType()
	}

	n := len(e.List)
	end := stop
	if stop == -1 {
		end = n - 1
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if n == 0 || start > end {
		return []string{}, nil
	}

	result := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		result = append(result, string(e.List[i]))
	}
	return result, nil
}

// execHSet implements HSET key field value.
func (d *Dispatcher) execHSet(args []string, now time.Time) (interface{}, error) {
	if len(args) != 3 {
		return nil, errWrongArgs("hset")
	}
	key, field, value := args[0], args[1], args[2]
	d.ks.ExpireIfNeeded(key, now)

	e, ok := d.ks.Get(key)
	if !ok {
		d.ks.Set(key, &store.Entry{Kind: store.KindHash, Hash: map[string][]byte{field: []byte(value)}})
		return 1, nil
	}
	if e.Kind != store.KindHash {
		return nil, store.NewWrongType()
	}
	_, existed := e.Hash[field]
	e.Hash[field] = []byte(value)
	if existed {
		return 0, nil
	}
	return 1, nil
}

// execHGet implements HGET key field.
func (d *Dispatcher) execHGet(args []string, now time.Time) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongArgs("hget")
	}
	key, field := args[0], args[1]
	d.ks.ExpireIfNeeded(key, now)

	e, ok := d.ks.Get(key)
	if !ok {
		return nil, nil
	}
	if e.Kind != store.KindHash {
		return nil, store.NewWrongType()
	}
	v, exists := e.Hash[field]
	if !exists {
		return nil, nil
	}
	return string(v), nil
}

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyspaceSetGetDelete(t *testing.T) {
	ks := New()
	ks.Set("foo", &Entry{Kind: KindString, Str: []byte("bar")})

	e, ok := ks.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", string(e.Str))

	assert.True(t, ks.Delete("foo"))
	assert.False(t, ks.Delete("foo"))
	_, ok = ks.Get("foo")
	assert.False(t, ok)
}

func TestExpireIfNeeded(t *testing.T) {
	ks := New()
	past := time.Now().Add(-time.Second)
	ks.Set("k", &Entry{Kind: KindString, Str: []byte("v"), Expiry: &past})

	assert.True(t, ks.ExpireIfNeeded("k", time.Now()))
	_, ok := ks.Get("k")
	assert.False(t, ok)

	// Missing key reports no expiry action.
	assert.False(t, ks.ExpireIfNeeded("missing", time.Now()))
}

func TestExpireIfNeededKeepsFutureEntry(t *testing.T) {
	ks := New()
	future := time.Now().Add(time.Hour)
	ks.Set("k", &Entry{Kind: KindString, Str: []byte("v"), Expiry: &future})

	assert.False(t, ks.ExpireIfNeeded("k", time.Now()))
	_, ok := ks.Get("k")
	assert.True(t, ok)
}

func TestSweepExpired(t *testing.T) {
	ks := New()
	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)
	ks.Set("dead", &Entry{Kind: KindString, Str: []byte("v"), Expiry: &past})
	ks.Set("alive", &Entry{Kind: KindString, Str: []byte("v"), Expiry: &future})
	ks.Set("forever", &Entry{Kind: KindString, Str: []byte("v")})

	removed := ks.SweepExpired(time.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, ks.Len())
}

func TestReplace(t *testing.T) {
	ks := New()
	ks.Set("a", &Entry{Kind: KindString, Str: []byte("1")})
	ks.Replace(map[string]*Entry{"b": {Kind: KindString, Str: []byte("2")}})

	_, ok := ks.Get("a")
	assert.False(t, ok)
	e, ok := ks.Get("b")
	require.True(t, ok)
	assert.Equal(t, "2", string(e.Str))
}

func TestEntryClone(t *testing.T) {
	e := &Entry{Kind: KindList, List: [][]byte{[]byte("a"), []byte("b")}}
	c := e.Clone()
	c.List[0][0] = 'z'
	assert.Equal(t, byte('a'), e.List[0][0], "Clone must not share backing arrays with the original")
}

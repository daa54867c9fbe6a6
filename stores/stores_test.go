package stores

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jilio/statemap"
)

func TestDigest(t *testing.T) {
	a := statemap.New[string]()
	a.Insert(statemap.TypeCreate, "", "$create")
	a.Insert(statemap.TypeMembership, "@alice:x", "$alice")
	a.Insert("org.example", "k", "$other")

	b := statemap.FromMap(map[statemap.Key]string{
		{Type: "org.example", StateKey: "k"}:                  "$other",
		{Type: statemap.TypeMembership, StateKey: "@alice:x"}: "$alice",
		{Type: statemap.TypeCreate}:                           "$create",
	})

	assert.Equal(t, Digest(a), Digest(b))
	assert.Equal(t, Digest(statemap.New[string]()), Digest(&statemap.StateMap[string]{}))

	b.Insert("org.example", "k", "$changed")
	assert.NotEqual(t, Digest(a), Digest(b))

	// Field boundaries are part of the digest.
	c := statemap.New[string]()
	c.Insert("ab", "c", "")
	d := statemap.New[string]()
	d.Insert("a", "bc", "")
	assert.NotEqual(t, Digest(c), Digest(d))

	// Separator bytes inside a field do not move the boundaries.
	e := statemap.New[string]()
	e.Insert("a\x00b", "c", "v")
	f := statemap.New[string]()
	f.Insert("a", "b\x00c", "v")
	assert.NotEqual(t, Digest(e), Digest(f))

	g := statemap.New[string]()
	g.Insert("t", "", "x\x1et\x00k")
	h := statemap.New[string]()
	h.Insert("t", "", "x")
	h.Insert("t", "k", "")
	assert.NotEqual(t, Digest(g), Digest(h))
}

type countHook struct{ saves, loads int }

func (h *countHook) OnSave(time.Duration, int, error) { h.saves++ }
func (h *countHook) OnLoad(time.Duration, int, error) { h.loads++ }

func TestMultiHook(t *testing.T) {
	assert.Nil(t, MultiHook())
	assert.Nil(t, MultiHook(nil, nil))

	a, b := &countHook{}, &countHook{}
	assert.Same(t, a, MultiHook(nil, a))

	h := MultiHook(a, nil, b)
	h.OnSave(0, 1, nil)
	h.OnLoad(0, 1, nil)
	h.OnLoad(0, 1, nil)
	assert.Equal(t, &countHook{saves: 1, loads: 2}, a)
	assert.Equal(t, &countHook{saves: 1, loads: 2}, b)
}

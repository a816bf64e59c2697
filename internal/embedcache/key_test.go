package embedcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TS01: same (model, text) always derives the same key.
func TestKey_Deterministic(t *testing.T) {
	assert.Equal(t, Key("m1", "hello"), Key("m1", "hello"))
}

// TS02: different text or different model changes the key.
func TestKey_VariesWithInputs(t *testing.T) {
	base := Key("m1", "hello")
	assert.NotEqual(t, base, Key("m1", "world"))
	assert.NotEqual(t, base, Key("m2", "hello"))
}

// TS03: the separator prevents trivial concatenation collisions
// ("ab" + "c" vs "a" + "bc").
func TestKey_SeparatorPreventsCollision(t *testing.T) {
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

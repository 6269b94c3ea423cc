package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash(t *testing.T) {
	// Known SHA-256 vector.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Hash(""))
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Hash("hello"))
}

func TestHash_Deterministic(t *testing.T) {
	a := Hash("the same content")
	b := Hash("the same content")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHash_DistinctInputs(t *testing.T) {
	assert.NotEqual(t, Hash("alpha"), Hash("beta"))
}

func TestHashEqual(t *testing.T) {
	h := Hash("content")
	assert.True(t, HashEqual(h, Hash("content")))
	assert.False(t, HashEqual(h, Hash("other")))
	assert.False(t, HashEqual(h, ""))
	assert.False(t, HashEqual(h, h[:32]))
}

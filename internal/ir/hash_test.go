package ir

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterminism(t *testing.T) {
	obj := IRObject{"op": IRString("filter"), "value": IRInt(7)}

	h1, err := Hash(DomainQuery, obj)
	require.NoError(t, err)
	h2, err := Hash(DomainQuery, IRObject{"value": IRInt(7), "op": IRString("filter")})
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "key order must not affect the hash")
}

func TestHashDomainSeparation(t *testing.T) {
	obj := IRObject{"name": IRString("Blog")}

	q := MustHash(DomainQuery, obj)
	s := MustHash(DomainSchema, obj)

	assert.NotEqual(t, q, s)
}

func TestHashChangesWithContent(t *testing.T) {
	a := MustHash(DomainQuery, IRObject{"value": IRString("Comment")})
	b := MustHash(DomainQuery, IRObject{"value": IRString("comment")})
	assert.NotEqual(t, a, b)
}

func TestHashHexEncoding(t *testing.T) {
	h := MustHash(DomainQuery, IRInt(1))
	assert.Len(t, h, 64)
	_, err := hex.DecodeString(h)
	assert.NoError(t, err)
}

func TestMustHashPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustHash(DomainQuery, 1.5)
	})
}

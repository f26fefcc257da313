package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Lowerable(t *testing.T) {
	b, _ := blogs(t)
	n, err := Build(b, Filter(AnyOf("Posts", Eq("Title", "x"))), Some(Eq("Name", "y")))
	require.NoError(t, err)

	result := Validate(n)
	assert.True(t, result.Lowerable)
	assert.Empty(t, result.Warnings)
}

func TestValidate_Opaque(t *testing.T) {
	b, _ := blogs(t)
	long := Where("long name", func(r Record) bool { return true })
	n, err := Build(b,
		Filter(AndOf(Eq("Name", "x"), long)),
		Every(Where("", func(Record) bool { return true })),
	)
	require.NoError(t, err)

	result := Validate(n)
	assert.False(t, result.Lowerable)
	assert.Equal(t, []string{
		"Filter: opaque predicate long name is evaluated in memory",
		"Every: opaque predicate <anonymous> is evaluated in memory",
	}, result.Warnings)
}

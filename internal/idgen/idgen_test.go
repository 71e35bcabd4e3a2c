package idgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ReturnsUUID(t *testing.T) {
	id := New()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, New())
}

func TestNew_Stubbable(t *testing.T) {
	orig := NewFunc
	t.Cleanup(func() { NewFunc = orig })

	NewFunc = func() string { return "fixed" }
	assert.Equal(t, "fixed", New())
}

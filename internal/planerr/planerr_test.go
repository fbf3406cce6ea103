package planerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		err := InvalidConfig("tiling.build", "axis %s is zero", "m")
		assert.True(t, IsInvalidConfig(err))
		assert.False(t, IsUnavailable(err))
		assert.Equal(t, "invalid_config in tiling.build: axis m is zero", err.Error())
	})

	t.Run("unavailable", func(t *testing.T) {
		err := Unavailable("validation", "grid too large")
		assert.True(t, IsUnavailable(err))
		assert.Equal(t, KindUnavailable, KindOf(err))
	})

	t.Run("wrapped keeps kind", func(t *testing.T) {
		inner := Unavailable("hypercube.resolve", "no sms")
		err := fmt.Errorf("prepare: %w", inner)
		assert.True(t, IsUnavailable(err))

		wrapped := Wrap("routine.simple", inner)
		assert.True(t, IsUnavailable(wrapped))
		assert.ErrorIs(t, wrapped, inner)
	})

	t.Run("foreign errors", func(t *testing.T) {
		plain := errors.New("boom")
		assert.Equal(t, Kind(0), KindOf(plain))
		assert.True(t, IsInvalidConfig(Wrap("op", plain)))
		assert.Nil(t, Wrap("op", nil))
	})
}

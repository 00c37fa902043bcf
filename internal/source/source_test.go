package source_test

import (
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformRange(t *testing.T) {
	src, err := source.NewUniform(10, 20, 42)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		v, err := src.Next()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 10.0)
		assert.Less(t, v, 20.0)
	}
}

func TestUniformSeedIsDeterministic(t *testing.T) {
	a, err := source.NewUniform(0, 1, 7)
	require.NoError(t, err)
	b, err := source.NewUniform(0, 1, 7)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		va, _ := a.Next()
		vb, _ := b.Next()
		assert.Equal(t, va, vb)
	}
}

func TestUniformRejectsInvertedRange(t *testing.T) {
	_, err := source.NewUniform(5, 1, 0)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidSource))
}

func TestRandomWalkStaysInRange(t *testing.T) {
	w, err := source.NewRandomWalk(source.WalkConfig{Min: -40, Max: 130, Noise: 0.5, Seed: 3})
	require.NoError(t, err)

	for i := 0; i < 5000; i++ {
		v, err := w.Next()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, -40.0)
		assert.LessOrEqual(t, v, 130.0)
	}
}

func TestRandomWalkRejectsNegativeNoise(t *testing.T) {
	_, err := source.NewRandomWalk(source.WalkConfig{Min: 0, Max: 1, Noise: -1})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidSource))
}

func TestConstantAndFunc(t *testing.T) {
	v, err := source.NewConstant(21.5).Next()
	require.NoError(t, err)
	assert.Equal(t, 21.5, v)

	boom := stderrors.New("boom")
	_, err = source.Func(func() (float64, error) { return 0, boom }).Next()
	assert.ErrorIs(t, err, boom)
}

func TestFromSpec(t *testing.T) {
	for _, kind := range []string{"", "uniform", "Walk", "constant"} {
		src, err := source.FromSpec(source.Spec{Kind: kind, Min: 1, Max: 2, Noise: 0.1, Seed: 1})
		require.NoError(t, err, kind)
		v, err := src.Next()
		require.NoError(t, err, kind)
		assert.GreaterOrEqual(t, v, 1.0, kind)
		assert.LessOrEqual(t, v, 2.0, kind)
	}

	_, err := source.FromSpec(source.Spec{Kind: "sine"})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidSource))
}

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartBitmapSetHas(t *testing.T) {
	var b PartBitmap
	assert.False(t, b.Has(1))

	b.Set(1)
	b.Set(3)
	b.Set(10)

	assert.True(t, b.Has(1))
	assert.False(t, b.Has(2))
	assert.True(t, b.Has(3))
	assert.True(t, b.Has(10))
	assert.False(t, b.Has(11))
	assert.Equal(t, 3, b.Count())
}

func TestPartBitmapMissing(t *testing.T) {
	var b PartBitmap
	b.Set(2)
	b.Set(4)

	assert.Equal(t, []int{1, 3, 5}, b.Missing(5))

	b.Set(1)
	b.Set(3)
	b.Set(5)
	assert.Nil(t, b.Missing(5))
}

func TestPartBitmapIgnoresInvalid(t *testing.T) {
	var b PartBitmap
	b.Set(0)
	b.Set(-4)
	assert.Equal(t, 0, b.Count())
	assert.False(t, b.Has(0))
	assert.False(t, b.Has(-1))
}

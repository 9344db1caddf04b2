package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtentEmpty(t *testing.T) {
	img := New()
	first, last, count, err := Extent(img, 0, 0xFFFF)
	require.NoError(t, err)
	assert.Equal(t, LenImage, first)
	assert.Equal(t, 0, last)
	assert.Equal(t, 0, count)
}

func TestFillAndExtent(t *testing.T) {
	img := New()
	require.NoError(t, Fill(img, 0x8000, 0x80FF, 0xAA))
	first, last, count, err := Extent(img, 0, LenImage-1)
	require.NoError(t, err)
	assert.Equal(t, 0x8000, first)
	assert.Equal(t, 0x80FF, last)
	assert.Equal(t, 256, count)
	for a := 0x8000; a <= 0x80FF; a++ {
		v, ok := img.Get(a)
		assert.True(t, ok)
		assert.Equal(t, byte(0xAA), v)
	}
}

func TestFillIdempotent(t *testing.T) {
	img := New()
	require.NoError(t, Fill(img, 10, 20, 1))
	require.NoError(t, Fill(img, 10, 20, 1))
	_, _, count, err := Extent(img, 0, LenImage-1)
	require.NoError(t, err)
	assert.Equal(t, 11, count)
}

func TestClipPreservesInside(t *testing.T) {
	img := New()
	require.NoError(t, Fill(img, 0, 100, 1))
	require.NoError(t, Clip(img, 10, 20))
	first, last, count, err := Extent(img, 0, LenImage-1)
	require.NoError(t, err)
	assert.Equal(t, 10, first)
	assert.Equal(t, 20, last)
	assert.Equal(t, 11, count)
}

func TestCutClearsInside(t *testing.T) {
	img := New()
	require.NoError(t, Fill(img, 0, 100, 1))
	require.NoError(t, Cut(img, 10, 20))
	for a := 10; a <= 20; a++ {
		assert.False(t, img.Defined(a))
	}
	assert.True(t, img.Defined(0))
	assert.True(t, img.Defined(100))
}

func TestCopyPreservesSourceAndSparseness(t *testing.T) {
	img := New()
	img.Set(100, 0x11)
	// 101 left undefined deliberately
	img.Set(102, 0x33)
	require.NoError(t, Copy(img, 100, 102, 200))
	v, ok := img.Get(200)
	assert.True(t, ok)
	assert.Equal(t, byte(0x11), v)
	_, ok = img.Get(201)
	assert.False(t, ok)
	v, ok = img.Get(202)
	assert.True(t, ok)
	assert.Equal(t, byte(0x33), v)
	// source preserved
	v, ok = img.Get(100)
	assert.True(t, ok)
	assert.Equal(t, byte(0x11), v)
}

func TestMoveComposability(t *testing.T) {
	// move(src, dst) is observationally equal to copy(src, dst); cut(src).
	imgMove := New()
	imgMove.Set(10, 0xAA)
	imgMove.Set(11, 0xBB)
	require.NoError(t, Move(imgMove, 10, 11, 50))

	imgCopyCut := New()
	imgCopyCut.Set(10, 0xAA)
	imgCopyCut.Set(11, 0xBB)
	require.NoError(t, Copy(imgCopyCut, 10, 11, 50))
	require.NoError(t, Cut(imgCopyCut, 10, 11))

	for a := 0; a < 64; a++ {
		v1, ok1 := imgMove.Get(a)
		v2, ok2 := imgCopyCut.Get(a)
		assert.Equal(t, ok1, ok2, "addr %d", a)
		if ok1 {
			assert.Equal(t, v1, v2, "addr %d", a)
		}
	}
}

func TestMoveOverlapSafe(t *testing.T) {
	img := New()
	require.NoError(t, Fill(img, 100, 103, 0x01))
	img.Set(100, 0x10)
	img.Set(101, 0x11)
	img.Set(102, 0x12)
	img.Set(103, 0x13)
	// overlapping move shifted by 2
	require.NoError(t, Move(img, 100, 103, 102))
	v, _ := img.Get(102)
	assert.Equal(t, byte(0x10), v)
	v, _ = img.Get(103)
	assert.Equal(t, byte(0x11), v)
	v, _ = img.Get(104)
	assert.Equal(t, byte(0x12), v)
	v, _ = img.Get(105)
	assert.Equal(t, byte(0x13), v)
	assert.False(t, img.Defined(100))
	assert.False(t, img.Defined(101))
}

func TestRangeErrors(t *testing.T) {
	img := New()
	_, _, _, err := Extent(img, 10, 5)
	require.Error(t, err)
	var ae *AddressError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "AddressStartGreaterEnd", ae.Kind)

	err = Fill(img, -1, 5, 0)
	require.Error(t, err)

	err = Fill(img, 0, LenImage, 0)
	require.Error(t, err)
}

func TestPresenceTagInvariant(t *testing.T) {
	img := New()
	require.NoError(t, Fill(img, 0, 255, 7))
	require.NoError(t, Move(img, 0, 127, 64))
	for a := 0; a < 512; a++ {
		c := img.cells[a]
		hb := c & 0xFF00
		assert.True(t, hb == 0x0000 || hb == 0xFF00, "addr %d hb=%04x", a, hb)
	}
}

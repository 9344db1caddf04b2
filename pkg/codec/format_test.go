package codec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkStokes71/stm8gal/pkg/image"
)

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{"srec": KindSRecord, "ihex": KindIntelHex, "ascii": KindASCIITable, "raw": KindRaw, "bin": KindRaw}
	for in, want := range cases {
		got, err := ParseKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseKind("nonsense")
	require.Error(t, err)
}

func TestFormatDecodeEncodeDispatchesByKind(t *testing.T) {
	img := image.New()
	require.NoError(t, image.Fill(img, 0x100, 0x10F, 0x42))
	f := Format{Kind: KindRaw, RawBaseAddr: 0x100}
	data, err := f.Encode(img)
	require.NoError(t, err)

	roundTrip := image.New()
	require.NoError(t, f.Decode(roundTrip, data))
	for a := 0x100; a <= 0x10F; a++ {
		b, ok := roundTrip.Get(a)
		require.True(t, ok)
		assert.Equal(t, byte(0x42), b)
	}
}

func TestFormatReadWriteFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	f := Format{Kind: KindRaw}
	require.NoError(t, f.WriteFile(path, []byte{1, 2, 3}))
	got, err := f.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
	_ = os.Remove(path)
}

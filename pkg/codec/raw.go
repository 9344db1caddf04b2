package codec

import (
	"github.com/MarkStokes71/stm8gal/pkg/image"
)

// DecodeRaw loads data as a contiguous block of defined bytes starting at
// baseAddr; every byte becomes defined.
func DecodeRaw(img *image.Image, data []byte, baseAddr int) error {
	if baseAddr < 0 || baseAddr+len(data) > image.LenImage {
		return byteErr("FileBufferExceeded", baseAddr, "raw image of %d bytes at base 0x%X exceeds image capacity", len(data), baseAddr)
	}
	for i, b := range data {
		img.Set(baseAddr+i, b)
	}
	return nil
}

// EncodeRaw emits the contiguous range [first, last] as raw bytes, with
// undefined bytes rendered as 0x00. This is lossy: raw binary cannot
// represent holes, so round-tripping only holds for a hole-free image.
func EncodeRaw(img *image.Image) ([]byte, error) {
	first, last, count, err := image.Extent(img, 0, image.LenImage-1)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	out := make([]byte, last-first+1)
	for a := first; a <= last; a++ {
		v, _ := img.Get(a)
		out[a-first] = v
	}
	return out, nil
}

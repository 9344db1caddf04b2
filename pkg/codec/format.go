package codec

import (
	"fmt"
	"os"

	"github.com/MarkStokes71/stm8gal/pkg/image"
)

// Kind names one of the four file formats of spec.md §4.2.
type Kind string

const (
	KindSRecord    Kind = "srec"
	KindIntelHex   Kind = "ihex"
	KindASCIITable Kind = "ascii"
	KindRaw        Kind = "raw"
)

// ParseKind accepts the common spellings for each format, tolerant of
// the longer aliases a CLI flag is likely to carry.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "srec", "s19", "s-record", "motorola":
		return KindSRecord, nil
	case "ihex", "hex", "intel-hex":
		return KindIntelHex, nil
	case "ascii", "table", "ascii-table":
		return KindASCIITable, nil
	case "raw", "bin", "binary":
		return KindRaw, nil
	default:
		return "", fmt.Errorf("codec: unknown format %q", s)
	}
}

// Format names a file format plus whatever extra addressing
// information that format needs: raw binary carries no addresses of
// its own, so a load/read always needs a base address supplied
// out of band.
type Format struct {
	Kind        Kind
	RawBaseAddr int // only consulted when Kind == KindRaw
}

// Decode merges data into img using this format's decoder.
func (f Format) Decode(img *image.Image, data []byte) error {
	switch f.Kind {
	case KindSRecord:
		return DecodeSRecord(img, data)
	case KindIntelHex:
		return DecodeIntelHex(img, data)
	case KindASCIITable:
		return DecodeASCIITable(img, data)
	case KindRaw:
		return DecodeRaw(img, data, f.RawBaseAddr)
	default:
		return fmt.Errorf("codec: unknown format %q", string(f.Kind))
	}
}

// Encode serializes img's defined bytes using this format's encoder.
func (f Format) Encode(img *image.Image) ([]byte, error) {
	switch f.Kind {
	case KindSRecord:
		return EncodeSRecord(img)
	case KindIntelHex:
		return EncodeIntelHex(img)
	case KindASCIITable:
		return EncodeASCIITable(img)
	case KindRaw:
		return EncodeRaw(img)
	default:
		return nil, fmt.Errorf("codec: unknown format %q", string(f.Kind))
	}
}

// ReadFile reads path's full contents; the thin wrapper exists so
// callers only need to import pkg/codec, not os, to load an input file.
func (f Format) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to path with the permissions a programmer
// output file conventionally gets.
func (f Format) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// Package ramroutine implements the RAM-routine loader (spec.md §4.5): a
// static registry mapping (family, flash size, BSL version) to an
// embedded Intel HEX blob, and the side-load sequence that places it in
// target RAM before the first flash write/erase of a session.
package ramroutine

import (
	"fmt"

	"github.com/MarkStokes71/stm8gal/pkg/codec"
	"github.com/MarkStokes71/stm8gal/pkg/image"
	"github.com/MarkStokes71/stm8gal/pkg/protocol"
)

// key identifies one vendor (or open-source replacement) RAM routine
// blob. Flash size is expressed in kB to match TargetDescriptor.
type key struct {
	family    protocol.Family
	flashKB   int
	bslMinVer byte // BSL version this blob was built for
}

// Blob is an opaque Intel-HEX stream: the core treats it as a black box
// parameterized by (family, flash size, BSL version); it never
// interprets the executable content, only where to place it (spec.md
// §1 "Explicitly out of scope").
type Blob struct {
	IntelHex []byte
}

// registry is the static, process-wide, read-only-after-init table of
// known RAM routines (spec.md §5 "RAM-routine registry is process-wide
// and read-only after initialization"). It starts empty (blobs.go ships
// no blobs) and is filled only through Register; unsupported
// combinations are a first-class error, not a silent fallback (spec.md
// §9 design note).
var registry = map[key]*Blob{}

// Register adds (or overrides, for tests) a blob for the given device
// tuple. This package registers nothing itself; a downstream build
// registers its own blobs, and tests use this to inject small synthetic
// blobs.
func Register(family protocol.Family, flashKB int, bslVersion byte, blob *Blob) {
	registry[key{family, flashKB, bslVersion}] = blob
}

func lookup(family protocol.Family, flashKB int, bslVersion byte) (*Blob, bool) {
	b, ok := registry[key{family, flashKB, bslVersion}]
	return b, ok
}

// Loader implements protocol.RAMRoutineLoader: it looks up the matching
// blob for the engine's identified target, decodes it into a scratch
// image, and side-loads it via raw WRITE transactions that bypass the
// "requires RAM routine" check (spec.md §4.5 steps 1-4).
type Loader struct{}

// NewLoader returns a RAM-routine loader backed by the static registry.
func NewLoader() *Loader { return &Loader{} }

// EnsureLoaded looks up and side-loads the RAM routine for eng.Target,
// then marks the engine's session state as resident so later calls
// within the same session are no-ops.
func (l *Loader) EnsureLoaded(eng *protocol.Engine) error {
	if eng.RAMResident() {
		return nil
	}
	target := eng.Target
	blob, ok := lookup(target.Family, target.FlashSizeKB, target.BSLVersion)
	if !ok {
		return fmt.Errorf("ramroutine: %w", &NotFoundError{
			Family:     target.Family,
			FlashKB:    target.FlashSizeKB,
			BSLVersion: target.BSLVersion,
		})
	}

	scratch := image.New()
	if err := codec.DecodeIntelHex(scratch, blob.IntelHex); err != nil {
		return fmt.Errorf("ramroutine: decoding blob: %w", err)
	}

	first, last, count, err := image.Extent(scratch, 0, image.LenImage-1)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("ramroutine: blob for %s/%dkB/0x%02X decodes to no data", target.Family, target.FlashSizeKB, target.BSLVersion)
	}

	for _, chunk := range protocol.PlanWrite(scratch, first, last) {
		if err := eng.WriteRaw(uint32(chunk.Addr), chunk.Data); err != nil {
			return fmt.Errorf("ramroutine: side-loading at 0x%06X: %w", chunk.Addr, err)
		}
	}
	eng.MarkRAMRoutineResident()
	return nil
}

// NotFoundError reports that no RAM routine blob matches a target's
// identified (family, flash size, BSL version) tuple (spec.md §4.5 step
// 1: "CannotIdentifyDevice").
type NotFoundError struct {
	Family     protocol.Family
	FlashKB    int
	BSLVersion byte
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("CannotIdentifyDevice: no RAM routine for %s/%dkB BSL 0x%02X", e.Family, e.FlashKB, e.BSLVersion)
}

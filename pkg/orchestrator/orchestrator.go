// Package orchestrator composes the image, codec, frame, protocol, and
// ram-routine layers into the full programming session described in
// spec.md §4.6: configure transport, sync/identify, decode inputs,
// apply transforms, erase, upload with progress events, verify,
// read-out, and an optional final jump.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkStokes71/stm8gal/pkg/codec"
	"github.com/MarkStokes71/stm8gal/pkg/frame"
	"github.com/MarkStokes71/stm8gal/pkg/image"
	"github.com/MarkStokes71/stm8gal/pkg/protocol"
	"github.com/MarkStokes71/stm8gal/pkg/ramroutine"
)

// Phase names tag Event and are emitted in this order during a typical
// program+verify+read-out+go session (spec.md §4.6 steps 2, 6, 7, 8, 9).
const (
	PhaseSync      = "sync"
	PhaseIdentify  = "identify"
	PhaseErase     = "erase"
	PhaseWrite     = "write"
	PhaseVerify    = "verify"
	PhaseReadOut   = "read-out"
	PhaseGo        = "go"
)

// Event reports progress within one phase of a session. Seq is
// monotonic across the whole session, not just within a phase, so a
// caller driving a single progress bar doesn't need to track phase
// transitions itself.
type Event struct {
	Seq        int
	Phase      string
	BytesDone  int
	BytesTotal int
}

// ResetMethod mirrors the reset_method enum of spec.md §6. dtr/rts pulse
// the transport's reset line, which the uart transport maps to a modem
// line and spidev ignores; gpio is accepted and does nothing here (see
// DESIGN.md).
type ResetMethod string

const (
	ResetNone ResetMethod = "none"
	ResetDTR  ResetMethod = "dtr"
	ResetRTS  ResetMethod = "rts"
	ResetGPIO ResetMethod = "gpio"
)

// InputFile is one decode step of spec.md §4.6 step 3.
type InputFile struct {
	Path   string
	Format codec.Format
}

// OutputFile is one export step of spec.md §4.6 step 8, scoped to
// [Lo, Hi].
type OutputFile struct {
	Path   string
	Format codec.Format
	Lo, Hi int
}

// Transform is one of the fill/clip/cut/copy/move session-image edits
// of spec.md §4.6 step 4.
type Transform struct {
	Kind           string // "fill", "clip", "cut", "copy", "move"
	Lo, Hi         int
	Value          byte
	DstLo          int
}

// Config is everything the orchestrator needs to run one session,
// corresponding to spec.md §6's enumerated configuration surface.
type Config struct {
	Transport         frame.Transport
	Kind              frame.Kind
	UARTModeOverride  *frame.Mode
	Reset             ResetMethod
	SyncAttempts      int
	Inputs            []InputFile
	Transforms        []Transform
	MassErase         bool
	EraseSectors      []int
	Verify            bool
	ReadOut           []OutputFile
	JumpAfter         *uint32
	RAMRoutineLoader  protocol.RAMRoutineLoader
}

// Report summarizes a completed (or partially completed, on error)
// session.
type Report struct {
	Target        protocol.TargetDescriptor
	UARTMode      frame.Mode
	BytesWritten  int
	BytesVerified int
	BytesRead     int
}

// CancelledError wraps ctx.Err() to record that the session was
// aborted between transactions rather than failing on its own
// (spec.md §5 "Cancellation... taints the session").
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string { return fmt.Sprintf("session cancelled: %v", e.Err) }
func (e *CancelledError) Unwrap() error  { return e.Err }

// Run executes one full session against cfg.Transport, emitting
// progress events on onEvent (which may be nil). It closes the
// transport on every exit path.
func Run(ctx context.Context, cfg Config, onEvent func(Event)) (*Report, error) {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	seq := 0
	emit := func(phase string, done, total int) {
		seq++
		onEvent(Event{Seq: seq, Phase: phase, BytesDone: done, BytesTotal: total})
	}

	if err := cfg.Transport.Open(); err != nil {
		return nil, fmt.Errorf("orchestrator: opening transport: %w", err)
	}
	defer cfg.Transport.Close()

	mode := frame.ModeFullDuplex
	if cfg.UARTModeOverride != nil {
		mode = *cfg.UARTModeOverride
	}
	fr := frame.New(cfg.Transport, cfg.Kind, mode)
	eng := protocol.New(fr)
	if cfg.RAMRoutineLoader != nil {
		eng.SetRAMRoutineLoader(cfg.RAMRoutineLoader)
	} else {
		eng.SetRAMRoutineLoader(ramroutine.NewLoader())
	}

	if err := applyReset(cfg); err != nil {
		return nil, err
	}

	emit(PhaseSync, 0, 1)
	if err := eng.Sync(cfg.SyncAttempts); err != nil {
		return nil, fmt.Errorf("orchestrator: sync: %w", err)
	}
	emit(PhaseSync, 1, 1)

	if cfg.Kind == frame.KindUART && cfg.UARTModeOverride == nil {
		detected, err := eng.DetectUARTMode(0)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: detecting uart mode: %w", err)
		}
		mode = detected
	}

	emit(PhaseIdentify, 0, 1)
	target, err := eng.Identify()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: identify: %w", err)
	}
	emit(PhaseIdentify, 1, 1)

	sessionImg := image.New()
	for _, in := range cfg.Inputs {
		if err := decodeInto(sessionImg, in); err != nil {
			return nil, fmt.Errorf("orchestrator: decoding %s: %w", in.Path, err)
		}
	}
	if err := applyTransforms(sessionImg, cfg.Transforms); err != nil {
		return nil, fmt.Errorf("orchestrator: applying transform: %w", err)
	}

	if err := checkCancelled(ctx, eng); err != nil {
		return nil, err
	}

	if cfg.MassErase {
		emit(PhaseErase, 0, 1)
		if err := eng.MassErase(); err != nil {
			return nil, fmt.Errorf("orchestrator: mass erase: %w", err)
		}
		emit(PhaseErase, 1, 1)
	} else if len(cfg.EraseSectors) > 0 {
		emit(PhaseErase, 0, 1)
		if err := eng.EraseSectors(cfg.EraseSectors); err != nil {
			return nil, fmt.Errorf("orchestrator: erase sectors: %w", err)
		}
		emit(PhaseErase, 1, 1)
	}

	report := &Report{Target: *target, UARTMode: mode}

	first, last, count, err := image.Extent(sessionImg, 0, image.LenImage-1)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		if err := checkCancelled(ctx, eng); err != nil {
			return nil, err
		}
		chunks := protocol.PlanWrite(sessionImg, first, last)
		total := count
		done := 0
		for _, c := range chunks {
			if err := checkCancelled(ctx, eng); err != nil {
				return nil, err
			}
			if err := eng.Write(uint32(c.Addr), c.Data); err != nil {
				return nil, fmt.Errorf("orchestrator: write at 0x%06X: %w", c.Addr, err)
			}
			done += len(c.Data)
			emit(PhaseWrite, done, total)
		}
		report.BytesWritten = done

		if cfg.Verify {
			if err := checkCancelled(ctx, eng); err != nil {
				return nil, err
			}
			emit(PhaseVerify, 0, total)
			if err := eng.Verify(sessionImg, first, last); err != nil {
				return nil, fmt.Errorf("orchestrator: verify: %w", err)
			}
			report.BytesVerified = total
			emit(PhaseVerify, total, total)
		}
	}

	for _, out := range cfg.ReadOut {
		if err := checkCancelled(ctx, eng); err != nil {
			return nil, err
		}
		n := out.Hi - out.Lo + 1
		emit(PhaseReadOut, 0, n)
		readImg := image.New()
		if err := eng.Read(uint32(out.Lo), n, readImg); err != nil {
			return nil, fmt.Errorf("orchestrator: read-out %s: %w", out.Path, err)
		}
		emit(PhaseReadOut, n, n)
		if err := exportTo(readImg, out); err != nil {
			return nil, fmt.Errorf("orchestrator: encoding %s: %w", out.Path, err)
		}
		report.BytesRead += n
	}

	if cfg.JumpAfter != nil {
		emit(PhaseGo, 0, 1)
		if err := eng.Go(*cfg.JumpAfter); err != nil {
			return nil, fmt.Errorf("orchestrator: go: %w", err)
		}
		emit(PhaseGo, 1, 1)
	}

	return report, nil
}

func checkCancelled(ctx context.Context, eng *protocol.Engine) error {
	select {
	case <-ctx.Done():
		_ = eng // session is tainted implicitly: no further transaction is attempted
		return &CancelledError{Err: ctx.Err()}
	default:
		return nil
	}
}

func applyReset(cfg Config) error {
	switch cfg.Reset {
	case ResetNone, "":
		return nil
	case ResetGPIO:
		// No core-level driver for an external GPIO line (spec.md §1
		// Non-goals); the caller is responsible for wiggling it before
		// calling Run.
		return nil
	case ResetDTR, ResetRTS:
		if err := cfg.Transport.SetResetLine(true); err != nil {
			return fmt.Errorf("orchestrator: asserting reset: %w", err)
		}
		time.Sleep(frame.ResetSettle)
		if err := cfg.Transport.SetResetLine(false); err != nil {
			return fmt.Errorf("orchestrator: releasing reset: %w", err)
		}
		time.Sleep(frame.ResetSettle)
		return nil
	default:
		return fmt.Errorf("orchestrator: unknown reset method %q", cfg.Reset)
	}
}

func decodeInto(img *image.Image, in InputFile) error {
	data, err := in.Format.ReadFile(in.Path)
	if err != nil {
		return err
	}
	return in.Format.Decode(img, data)
}

func exportTo(img *image.Image, out OutputFile) error {
	data, err := out.Format.Encode(img)
	if err != nil {
		return err
	}
	return out.Format.WriteFile(out.Path, data)
}

func applyTransforms(img *image.Image, transforms []Transform) error {
	for _, t := range transforms {
		var err error
		switch t.Kind {
		case "fill":
			err = image.Fill(img, t.Lo, t.Hi, t.Value)
		case "clip":
			err = image.Clip(img, t.Lo, t.Hi)
		case "cut":
			err = image.Cut(img, t.Lo, t.Hi)
		case "copy":
			err = image.Copy(img, t.Lo, t.Hi, t.DstLo)
		case "move":
			err = image.Move(img, t.Lo, t.Hi, t.DstLo)
		default:
			err = fmt.Errorf("unknown transform kind %q", t.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Plan exposes the write-chunk list the engine would emit for
// img's defined bytes in [lo, hi], without opening a transport
// (spec.md §4.6 step 6 "plan blocks", exposed standalone for
// --dry-run and for testing the block-planning property directly).
func Plan(img *image.Image, lo, hi int) []image.Chunk {
	return protocol.PlanWrite(img, lo, hi)
}

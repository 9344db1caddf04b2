// Package protocol implements the BSL protocol engine (spec.md §4.4):
// synchronize, identify, UART-mode detection, and the READ/WRITE/ERASE/GO
// state machine with its checksum, echo, acknowledgement, and retry
// rules.
package protocol

import (
	"errors"
	"time"

	"github.com/MarkStokes71/stm8gal/pkg/frame"
	"github.com/MarkStokes71/stm8gal/pkg/image"
)

// DefaultSyncAttempts and DefaultTransactionRetries are the retry budgets
// of spec.md §4.4.
const (
	DefaultSyncAttempts      = 5
	DefaultTransactionRetries = 3
	DefaultProbeAttempts      = 5

	maxReadChunk  = 256
	maxWriteChunk = 128
	writeAlign    = 128

	massEraseTimeout = 10 * time.Second
)

// TargetDescriptor is produced by Identify and is immutable thereafter;
// every subsequent transaction in the session reads it but never
// mutates it (spec.md §3 "Target Descriptor").
type TargetDescriptor struct {
	Family            Family
	BSLVersion        byte
	FlashSizeKB       int
	SupportedCommands map[byte]bool
	UARTMode          frame.Mode
	HasUARTMode       bool
}

// RAMRoutineLoader is the narrow interface the RAM-routine loader (C5)
// implements; the engine calls it before the first flash write/erase of
// a session that requires one. Kept as an interface here (rather than an
// import of pkg/ramroutine) so the dependency runs loader -> engine, not
// the reverse; pkg/orchestrator wires the two together.
type RAMRoutineLoader interface {
	EnsureLoaded(eng *Engine) error
}

// Engine is a single BSL session: exclusive owner of a frame.Frame and
// the session state machine (spec.md §5 — one mutable owner for the
// transport's lifetime).
type Engine struct {
	Frame  *frame.Frame
	Target TargetDescriptor

	ramLoader   RAMRoutineLoader
	ramResident bool
	tainted     bool
	done        bool
}

// New returns an engine bound to a configured frame.Frame. Call Sync,
// then Identify (and DetectUARTMode, for UART transports) before issuing
// READ/WRITE/ERASE/GO.
func New(fr *frame.Frame) *Engine {
	return &Engine{Frame: fr}
}

// SetRAMRoutineLoader wires the RAM-routine loader that EnsureLoaded is
// delegated to before the session's first flash write/erase.
func (e *Engine) SetRAMRoutineLoader(l RAMRoutineLoader) {
	e.ramLoader = l
}

// RAMResident reports whether the RAM routine has already been side-
// loaded this session.
func (e *Engine) RAMResident() bool { return e.ramResident }

// MarkRAMRoutineResident records that the RAM routine is now resident;
// subsequent flash writes skip the upload (spec.md §4.5 step 4).
func (e *Engine) MarkRAMRoutineResident() { e.ramResident = true }

// Tainted reports whether a fatal transport error has closed the session
// to further transactions; only a new Sync reopens it (spec.md §4.4
// "Failure semantics").
func (e *Engine) Tainted() bool { return e.tainted }

// Done reports whether Go has already been issued this session.
func (e *Engine) Done() bool { return e.done }

func (e *Engine) taint() { e.tainted = true }

// retryTransaction runs fn up to DefaultTransactionRetries times,
// retrying only on ResponseTimeout or a NACK where an ACK was expected;
// structural errors (ResponseUnexpected, checksum rejection) are not
// retried and surface immediately (spec.md §4.4 "Failure semantics").
func retryTransaction(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < DefaultTransactionRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		var te *frame.TransportError
		if errors.As(err, &te) && (te.Kind == "ResponseTimeout" || te.Kind == "Nack") {
			continue
		}
		return err
	}
	return lastErr
}

// Sync sends SYNCH and expects ACK or NACK (both acceptable — NACK means
// "already synced"); any other byte or timeout retries up to
// maxAttempts times before failing with TooManySyncAttempts.
func (e *Engine) Sync(maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultSyncAttempts
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := e.Frame.Transport.Send([]byte{frame.Synch}); err != nil {
			continue
		}
		err := e.Frame.ExpectAck(frame.DefaultResponseTimeout)
		if err == nil || frame.IsNack(err) {
			e.tainted = false
			e.done = false
			return nil
		}
	}
	e.taint()
	return newErr("TooManySyncAttempts")
}

// Identify issues GET and parses the response: one ACK, a length byte,
// a BSL-version byte, L opcodes, and a trailing ACK. It cross-checks
// that READ/WRITE/ERASE/GO are all present and derives family and flash
// size from the BSL version via the static table. GET is recorded as
// supported without being looked for in the opcode list.
func (e *Engine) Identify() (*TargetDescriptor, error) {
	if err := e.Frame.SendCommand(opGet); err != nil {
		e.taint()
		return nil, err
	}
	if err := e.Frame.ExpectAck(frame.DefaultResponseTimeout); err != nil {
		e.taint()
		return nil, newErr("IncorrectGetCode")
	}
	hdr, err := e.Frame.Recv(2, frame.DefaultResponseTimeout)
	if err != nil {
		e.taint()
		return nil, newErr("IncorrectGetCode")
	}
	length, version := hdr[0], hdr[1]
	opcodes, err := e.Frame.Recv(int(length), frame.DefaultResponseTimeout)
	if err != nil {
		e.taint()
		return nil, newErr("IncorrectGetCode")
	}
	if err := e.Frame.ExpectAck(frame.DefaultResponseTimeout); err != nil {
		e.taint()
		return nil, newErr("IncorrectGetCode")
	}

	supported := make(map[byte]bool, len(opcodes))
	for _, op := range opcodes {
		supported[op] = true
	}
	supported[opGet] = true // GET itself elicited this response

	required := map[byte]string{
		opRead:  "IncorrectReadCode",
		opWrite: "IncorrectWriteCode",
		opErase: "IncorrectEraseCode",
		opGo:    "IncorrectGoCode",
	}
	for op, kind := range required {
		if !supported[op] {
			return nil, newErr(kind)
		}
	}

	family, flashKB, ok := lookupBSLVersion(version)
	if !ok {
		return nil, newErr("CannotIdentifyFamily")
	}

	e.Target = TargetDescriptor{
		Family:            family,
		BSLVersion:        version,
		FlashSizeKB:       flashKB,
		SupportedCommands: supported,
	}
	return &e.Target, nil
}

// DetectUARTMode probes the wiring by sending a single byte and counting
// echoes: zero echoes is full duplex, one matching echo is reply mode,
// one inverted echo is two-wire. It retries up to maxProbes times before
// failing with CannotDetermineUartMode.
func (e *Engine) DetectUARTMode(maxProbes int) (frame.Mode, error) {
	if maxProbes <= 0 {
		maxProbes = DefaultProbeAttempts
	}
	const probeByte = 0x55
	for attempt := 0; attempt < maxProbes; attempt++ {
		if err := e.Frame.Transport.Send([]byte{probeByte}); err != nil {
			continue
		}
		echo, err := e.Frame.Transport.Recv(1, frame.DefaultByteTimeout)
		if err != nil || len(echo) == 0 {
			e.Target.UARTMode = frame.ModeFullDuplex
			e.Target.HasUARTMode = true
			e.Frame.Mode = frame.ModeFullDuplex
			return frame.ModeFullDuplex, nil
		}
		switch echo[0] {
		case probeByte:
			e.Target.UARTMode = frame.ModeReply
			e.Target.HasUARTMode = true
			e.Frame.Mode = frame.ModeReply
			return frame.ModeReply, nil
		case probeByte ^ 0xFF:
			e.Target.UARTMode = frame.ModeTwoWire
			e.Target.HasUARTMode = true
			e.Frame.Mode = frame.ModeTwoWire
			return frame.ModeTwoWire, nil
		}
	}
	return 0, newErr("CannotDetermineUartMode")
}

func addrBytes(addr uint32) []byte {
	return []byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

// sendAddress sends the 4-byte big-endian address and its payload
// checksum, and reads the ack; a NACK here means AddressNotExist (the
// target rejected the address, not a protocol violation).
func (e *Engine) sendAddress(addr uint32) error {
	if err := e.Frame.SendPayload(addrBytes(addr)); err != nil {
		return err
	}
	if err := e.Frame.ExpectAck(frame.DefaultResponseTimeout); err != nil {
		if frame.IsNack(err) {
			return &Error{Kind: "AddressNotExist", Address: addr}
		}
		return err
	}
	return nil
}

// Read fetches count bytes starting at addr into img, defining each byte
// read. Requests over maxReadChunk bytes are split into multiple
// transactions.
func (e *Engine) Read(addr uint32, count int, img *image.Image) error {
	if e.tainted || e.done {
		return newErr("PortNotOpen")
	}
	for count > 0 {
		n := count
		if n > maxReadChunk {
			n = maxReadChunk
		}
		if err := retryTransaction(func() error { return e.readChunk(addr, n, img) }); err != nil {
			if _, ok := err.(*Error); !ok {
				e.taint()
			}
			return err
		}
		addr += uint32(n)
		count -= n
	}
	return nil
}

func (e *Engine) readChunk(addr uint32, n int, img *image.Image) error {
	if err := e.Frame.SendCommand(opRead); err != nil {
		return err
	}
	if err := e.Frame.ExpectAck(frame.DefaultResponseTimeout); err != nil {
		return err
	}
	if err := e.sendAddress(addr); err != nil {
		return err
	}
	if err := e.Frame.SendPayload([]byte{byte(n - 1)}); err != nil {
		return err
	}
	if err := e.Frame.ExpectAck(frame.DefaultResponseTimeout); err != nil {
		return err
	}
	data, err := e.Frame.Recv(n, frame.DefaultResponseTimeout)
	if err != nil {
		return err
	}
	for i, b := range data {
		img.Set(int(addr)+i, b)
	}
	return nil
}

// WriteRaw issues a single WRITE transaction without the "does this
// region need a RAM routine" check. It exists for the RAM-routine loader
// (which must write the routine itself into RAM without recursing into
// EnsureLoaded) and for callers who have already satisfied that
// precondition. data must be <= maxWriteChunk bytes.
func (e *Engine) WriteRaw(addr uint32, data []byte) error {
	if e.tainted || e.done {
		return newErr("PortNotOpen")
	}
	return retryTransaction(func() error { return e.writeChunk(addr, data) })
}

func (e *Engine) writeChunk(addr uint32, data []byte) error {
	if err := e.Frame.SendCommand(opWrite); err != nil {
		return err
	}
	if err := e.Frame.ExpectAck(frame.DefaultResponseTimeout); err != nil {
		return err
	}
	if err := e.sendAddress(addr); err != nil {
		return err
	}
	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, byte(len(data)-1))
	payload = append(payload, data...)
	if err := e.Frame.SendPayload(payload); err != nil {
		return err
	}
	return e.Frame.ExpectAck(frame.DefaultResponseTimeout)
}

// Write issues a WRITE transaction, side-loading the RAM routine first
// if the family requires it and it is not already resident this session
// (spec.md §4.5). addr is not examined: on such a family a write to RAM
// or EEPROM triggers the side-load just as a flash write does.
func (e *Engine) Write(addr uint32, data []byte) error {
	if e.Target.Family.NeedsRAMRoutine() && !e.ramResident {
		if e.ramLoader == nil {
			return newErr("CannotIdentifyDevice")
		}
		if err := e.ramLoader.EnsureLoaded(e); err != nil {
			return err
		}
	}
	return e.WriteRaw(addr, data)
}

// EraseSectors issues a sector-erase transaction for the given 0-based
// sector indices.
func (e *Engine) EraseSectors(sectors []int) error {
	if e.Target.Family.NeedsRAMRoutine() && !e.ramResident {
		if e.ramLoader == nil {
			return newErr("CannotIdentifyDevice")
		}
		if err := e.ramLoader.EnsureLoaded(e); err != nil {
			return err
		}
	}
	return retryTransaction(func() error {
		if err := e.Frame.SendCommand(opErase); err != nil {
			return err
		}
		if err := e.Frame.ExpectAck(frame.DefaultResponseTimeout); err != nil {
			return err
		}
		payload := make([]byte, 0, len(sectors)+1)
		payload = append(payload, byte(len(sectors)-1))
		for _, s := range sectors {
			payload = append(payload, byte(s))
		}
		if err := e.Frame.SendPayload(payload); err != nil {
			return err
		}
		return e.Frame.ExpectAck(frame.DefaultResponseTimeout)
	})
}

// MassErase issues a mass-erase transaction with a long timeout on the
// final ACK (spec.md §4.4 "ERASE").
func (e *Engine) MassErase() error {
	if e.Target.Family.NeedsRAMRoutine() && !e.ramResident {
		if e.ramLoader == nil {
			return newErr("CannotIdentifyDevice")
		}
		if err := e.ramLoader.EnsureLoaded(e); err != nil {
			return err
		}
	}
	return retryTransaction(func() error {
		if err := e.Frame.SendCommand(opErase); err != nil {
			return err
		}
		if err := e.Frame.ExpectAck(frame.DefaultResponseTimeout); err != nil {
			return err
		}
		if err := e.Frame.SendPayload([]byte{0xFF}); err != nil {
			return err
		}
		return e.Frame.ExpectAck(massEraseTimeout)
	})
}

// Go issues the GO command; after it acknowledges, the target is no
// longer in the BSL and the session is marked DONE, refusing further
// transactions.
func (e *Engine) Go(addr uint32) error {
	err := retryTransaction(func() error {
		if err := e.Frame.SendCommand(opGo); err != nil {
			return err
		}
		if err := e.Frame.ExpectAck(frame.DefaultResponseTimeout); err != nil {
			return err
		}
		if err := e.sendAddress(addr); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.done = true
	return nil
}

// PlanWrite splits the defined bytes of img within [lo, hi] into the
// legal write chunks the engine will emit: runs of contiguous defined
// bytes, subdivided into chunks of at most maxWriteChunk bytes, aligned
// on writeAlign where possible, in ascending address order.
func PlanWrite(img *image.Image, lo, hi int) []image.Chunk {
	return image.ChunkDefined(img, lo, hi, maxWriteChunk, writeAlign)
}

// PlanRead splits [lo, hi] into read-sized chunks with no alignment
// constraint, covering every address in the window whether or not it is
// defined in any image.
func PlanRead(lo, hi int) []image.Chunk {
	var chunks []image.Chunk
	for addr := lo; addr <= hi; addr += maxReadChunk {
		end := addr + maxReadChunk - 1
		if end > hi {
			end = hi
		}
		chunks = append(chunks, image.Chunk{Addr: addr, Data: make([]byte, end-addr+1)})
	}
	return chunks
}

// VerifyMismatchError reports the first differing address found by
// Verify.
type VerifyMismatchError struct {
	Address  uint32
	Expected byte
	Got      byte
}

func (e *VerifyMismatchError) Error() string {
	return "verify mismatch"
}

// Verify reads back every defined region of img over the wire and
// compares byte-for-byte against want; it is not a wire command in its
// own right, just reads plus comparison (spec.md §4.4 "Verify").
func (e *Engine) Verify(want *image.Image, lo, hi int) error {
	first, last, count, err := image.Extent(want, lo, hi)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	readBack := image.New()
	if err := e.Read(uint32(first), last-first+1, readBack); err != nil {
		return err
	}
	for a := first; a <= last; a++ {
		wantByte, defined := want.Get(a)
		if !defined {
			continue
		}
		gotByte, _ := readBack.Get(a)
		if wantByte != gotByte {
			return &VerifyMismatchError{Address: uint32(a), Expected: wantByte, Got: gotByte}
		}
	}
	return nil
}

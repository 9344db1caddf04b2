// Package uart implements a frame.Transport over a Linux tty device:
// raw-mode termios configuration, byte-timeout reads via poll, and
// DTR/RTS reset-line control (spec.md §6 "interface": uart,
// "reset_method": none/dtr/rts).
package uart

import (
	"fmt"
	"time"
)

// ResetMethod selects which modem control line (if any) SetResetLine
// drives low to reset the target before a session.
type ResetMethod int

const (
	ResetNone ResetMethod = iota
	ResetDTR
	ResetRTS
)

func ParseResetMethod(s string) (ResetMethod, error) {
	switch s {
	case "", "none":
		return ResetNone, nil
	case "dtr":
		return ResetDTR, nil
	case "rts":
		return ResetRTS, nil
	case "gpio":
		return 0, fmt.Errorf("uart: reset_method \"gpio\" has no driver in this build")
	default:
		return 0, fmt.Errorf("uart: unknown reset_method %q", s)
	}
}

// Config describes how to open and configure a UART transport.
type Config struct {
	Device      string
	Baud        uint32
	ReadTimeout time.Duration // stored only; Recv uses the timeout its caller passes
	Reset       ResetMethod
}

// Transport is a frame.Transport backed by a raw tty device.
type Transport struct {
	cfg Config
	p   *port
}

// New returns an unopened UART transport for cfg. Call Open before use.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

// Open opens the device, puts it in raw mode at cfg.Baud with an 8N1
// frame, and enables CREAD|CLOCAL so reads don't block on carrier
// detect (spec.md §2 "no assumption about a connected carrier").
func (t *Transport) Open() error {
	p, err := openPort(t.cfg.Device)
	if err != nil {
		return wrapErr("uart: open", err)
	}
	attrs, err := p.GetAttr2()
	if err != nil {
		p.Close()
		return wrapErr("uart: get attrs", err)
	}
	attrs.MakeRaw()
	attrs.SetCustomSpeed(t.cfg.Baud)
	attrs.Cflag &^= CSTOPB | PARENB
	if err := p.SetAttr2(ActionNow, attrs); err != nil {
		p.Close()
		return wrapErr("uart: set attrs", err)
	}
	if err := p.Flush(QueueBoth); err != nil {
		p.Close()
		return wrapErr("uart: flush", err)
	}
	t.p = p
	return nil
}

// Close releases the underlying file descriptor.
func (t *Transport) Close() error {
	if t.p == nil {
		return nil
	}
	return wrapErr("uart: close", t.p.Close())
}

// Flush discards any buffered but unread input bytes. Nothing in this
// module calls it during a session; Sync does not flush between attempts.
func (t *Transport) Flush() error {
	return wrapErr("uart: flush", t.p.Flush(QueueInput))
}

// Send writes data in full; short writes are treated as an error since
// a tty device should never partially accept a write under O_NOCTTY.
func (t *Transport) Send(data []byte) error {
	n, err := t.p.Write(data)
	if err != nil {
		return wrapErr("uart: write", err)
	}
	if n != len(data) {
		return wrapErr("uart: short write", fmt.Errorf("wrote %d of %d bytes", n, len(data)))
	}
	return nil
}

// Recv reads exactly n bytes, blocking up to timeout total across
// however many syscalls it takes.
func (t *Transport) Recv(n int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, 0, n)
	deadline := time.Now().Add(timeout)
	for len(out) < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return out, wrapErr("uart: recv", fmt.Errorf("timed out with %d/%d bytes", len(out), n))
		}
		buf := make([]byte, n-len(out))
		got, err := t.p.ReadTimeout(buf, remaining)
		if err != nil {
			return out, wrapErr("uart: recv", err)
		}
		out = append(out, buf[:got]...)
	}
	return out, nil
}

// SetResetLine drives (assert=true) or releases the configured reset
// line. With ResetNone it is a no-op, matching targets reset by power
// cycling or an external supervisor.
func (t *Transport) SetResetLine(assert bool) error {
	var line ModemLine
	switch t.cfg.Reset {
	case ResetNone:
		return nil
	case ResetDTR:
		line = ModemDTR
	case ResetRTS:
		line = ModemRTS
	default:
		return fmt.Errorf("uart: unsupported reset method %v", t.cfg.Reset)
	}
	if assert {
		return wrapErr("uart: assert reset", t.p.EnableModemLines(line))
	}
	return wrapErr("uart: release reset", t.p.DisableModemLines(line))
}

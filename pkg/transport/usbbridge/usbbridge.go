// Package usbbridge implements the "spi-bridge" interface mode of
// spec.md §6: a USB-attached adapter that exposes a CDC-ACM tty for
// byte I/O but whose identity should be confirmed from its USB device
// descriptor before the session trusts it, rather than by path alone
// (udev symlinks can be reused by a different adapter after a replug).
//
// This package does not speak raw USB itself — no bulk/control
// transfer binding was available to ground that on (see DESIGN.md) — it
// parses the descriptor bytes the caller already read from sysfs and
// delegates actual framing I/O to pkg/transport/uart over the
// associated tty node.
package usbbridge

import (
	"fmt"
	"time"

	gousb "github.com/daedaluz/gousb"

	"github.com/MarkStokes71/stm8gal/pkg/transport/uart"
)

// Config identifies the expected bridge and the tty it should be
// talking over.
type Config struct {
	TTYDevice           string
	Baud                uint32
	Reset               uart.ResetMethod
	ExpectedVendorID    uint16
	ExpectedProductID   uint16
	RawDeviceDescriptor []byte // bytes read from /sys/bus/usb/devices/.../descriptors
}

// Transport is a frame.Transport that verifies a USB device descriptor
// before delegating to a uart.Transport over the bridge's tty node.
type Transport struct {
	cfg   Config
	inner *uart.Transport
}

// New returns an unopened USB-bridge transport for cfg.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

// Open parses cfg.RawDeviceDescriptor (if provided) and rejects a
// mismatched vendor/product ID before opening the underlying tty.
func (t *Transport) Open() error {
	if len(t.cfg.RawDeviceDescriptor) > 0 {
		desc, err := gousb.ParseDescriptor(t.cfg.RawDeviceDescriptor)
		if err != nil {
			return fmt.Errorf("usbbridge: parsing device descriptor: %w", err)
		}
		dev, ok := desc.(*gousb.DeviceDescriptor)
		if !ok {
			return fmt.Errorf("usbbridge: expected a device descriptor, got %s", desc.Type())
		}
		if dev.IDVendor != t.cfg.ExpectedVendorID || dev.IDProduct != t.cfg.ExpectedProductID {
			return fmt.Errorf("usbbridge: device is %04X:%04X, expected %04X:%04X",
				dev.IDVendor, dev.IDProduct, t.cfg.ExpectedVendorID, t.cfg.ExpectedProductID)
		}
	}
	t.inner = uart.New(uart.Config{Device: t.cfg.TTYDevice, Baud: t.cfg.Baud, Reset: t.cfg.Reset})
	return t.inner.Open()
}

func (t *Transport) Close() error { return t.inner.Close() }
func (t *Transport) Flush() error { return t.inner.Flush() }

func (t *Transport) Send(data []byte) error { return t.inner.Send(data) }

func (t *Transport) Recv(n int, timeout time.Duration) ([]byte, error) {
	return t.inner.Recv(n, timeout)
}

func (t *Transport) SetResetLine(assert bool) error { return t.inner.SetResetLine(assert) }

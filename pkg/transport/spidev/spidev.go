// Package spidev implements a frame.Transport over a Linux /dev/spidevN.N
// device (spec.md §6 "interface": spi): full-duplex ioctl transfers,
// synthesizing half-duplex semantics by discarding the simultaneous
// receive bytes on a pure send and padding transmit with zero bytes on
// a pure receive, exactly as the BSL's SPI mode expects.
package spidev

import (
	"fmt"
	"reflect"
	"syscall"
	"time"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

const spiIOCMagic = 'k'

type spiIOCTransfer struct {
	txBuf uint64
	rxBuf uint64

	length  uint32
	speedHz uint32

	delayUsecs    uint16
	bitsPerWord   uint8
	csChange      uint8
	txNBits       uint8
	rxNBits       uint8
	wordDelayUsec uint8
	pad           uint8
}

var (
	spiIOCWrMode32      = ioctl.IOW(spiIOCMagic, 5, 4)
	spiIOCWrBitsPerWord = ioctl.IOW(spiIOCMagic, 3, 1)
	spiIOCWrMaxSpeedHz  = ioctl.IOW(spiIOCMagic, 4, 4)
	spiIOCMessage       = ioctl.IOW(spiIOCMagic, 0, unsafe.Sizeof(spiIOCTransfer{}))
)

// Config configures the spidev device this transport opens.
type Config struct {
	Device    string
	Mode      uint32
	Bits      uint8
	SpeedHz   uint32
	DelayUsec uint16
}

// Transport is a frame.Transport over a Linux spidev character device.
type Transport struct {
	cfg Config
	fd  int
}

// New returns an unopened SPI transport for cfg. Call Open before use.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg, fd: -1}
}

// Open opens the spidev node and programs its mode, word size, and
// clock speed.
func (t *Transport) Open() error {
	fd, err := syscall.Open(t.cfg.Device, syscall.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("spidev: open %s: %w", t.cfg.Device, err)
	}
	mode := t.cfg.Mode
	if err := ioctl.Ioctl(uintptr(fd), spiIOCWrMode32, uintptr(unsafe.Pointer(&mode))); err != nil {
		syscall.Close(fd)
		return fmt.Errorf("spidev: set mode: %w", err)
	}
	bits := t.cfg.Bits
	if bits == 0 {
		bits = 8
	}
	if err := ioctl.Ioctl(uintptr(fd), spiIOCWrBitsPerWord, uintptr(unsafe.Pointer(&bits))); err != nil {
		syscall.Close(fd)
		return fmt.Errorf("spidev: set bits per word: %w", err)
	}
	speed := t.cfg.SpeedHz
	if err := ioctl.Ioctl(uintptr(fd), spiIOCWrMaxSpeedHz, uintptr(unsafe.Pointer(&speed))); err != nil {
		syscall.Close(fd)
		return fmt.Errorf("spidev: set speed: %w", err)
	}
	t.fd = fd
	return nil
}

// Close releases the spidev file descriptor.
func (t *Transport) Close() error {
	if t.fd < 0 {
		return nil
	}
	fd := t.fd
	t.fd = -1
	return syscall.Close(fd)
}

// Flush is a no-op on SPI: there is no kernel-side receive buffer to
// discard between transactions, every byte only moves during an
// explicit transfer.
func (t *Transport) Flush() error { return nil }

// Send clocks out data, discarding whatever comes back on MISO. The BSL
// over SPI replies only after a BUSY/ACK sequence the caller reads
// separately with Recv, so the bytes shifted in here are not meaningful.
func (t *Transport) Send(data []byte) error {
	_, err := t.transfer(data)
	return err
}

// Recv clocks out n zero bytes to drive the clock and returns what MISO
// shifted in, which is how full-duplex SPI performs a "read": the
// frame layer treats these inbound bytes (including any BUSY padding)
// exactly as it would a UART response.
func (t *Transport) Recv(n int, _ time.Duration) ([]byte, error) {
	tx := make([]byte, n)
	return t.transfer(tx)
}

func (t *Transport) transfer(tx []byte) ([]byte, error) {
	rx := make([]byte, len(tx))
	if len(tx) == 0 {
		return rx, nil
	}
	txHdr := (*reflect.SliceHeader)(unsafe.Pointer(&tx))
	rxHdr := (*reflect.SliceHeader)(unsafe.Pointer(&rx))
	xfer := &spiIOCTransfer{
		txBuf:       uint64(txHdr.Data),
		rxBuf:       uint64(rxHdr.Data),
		length:      uint32(txHdr.Len),
		speedHz:     t.cfg.SpeedHz,
		delayUsecs:  t.cfg.DelayUsec,
		bitsPerWord: t.cfg.Bits,
	}
	if err := ioctl.Ioctl(uintptr(t.fd), spiIOCMessage, uintptr(unsafe.Pointer(xfer))); err != nil {
		return nil, fmt.Errorf("spidev: transfer: %w", err)
	}
	return rx, nil
}

// SetResetLine has no SPI-native equivalent; spec.md §6 scopes SPI
// resets to an external GPIO line, which this package does not drive
// (see DESIGN.md). Callers that need it wire a separate reset
// mechanism in the orchestrator.
func (t *Transport) SetResetLine(bool) error { return nil }

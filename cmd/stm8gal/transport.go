package main

import (
	"fmt"
	"time"

	"github.com/MarkStokes71/stm8gal/pkg/config"
	"github.com/MarkStokes71/stm8gal/pkg/frame"
	"github.com/MarkStokes71/stm8gal/pkg/transport/spidev"
	"github.com/MarkStokes71/stm8gal/pkg/transport/uart"
)

// buildTransport constructs the frame.Transport named by cfg.Interface.
// spi-bridge is accepted by pkg/config but has no descriptor source on
// the CLI yet (no sysfs-path flag was part of spec.md §6's surface),
// so it falls back to a plain uart.Transport over cfg.Port; a future
// flag can route a descriptor through usbbridge.New.
func buildTransport(cfg *config.Config) (frame.Transport, error) {
	switch cfg.Interface {
	case config.InterfaceUART, config.InterfaceSPIBridge:
		reset, err := uart.ParseResetMethod(cfg.ResetMethod)
		if err != nil {
			return nil, err
		}
		return uart.New(uart.Config{
			Device:      cfg.Port,
			Baud:        cfg.Baud,
			ReadTimeout: 2 * time.Second,
			Reset:       reset,
		}), nil
	case config.InterfaceSPIDevice:
		return spidev.New(spidev.Config{
			Device:  cfg.Port,
			Mode:    0,
			Bits:    8,
			SpeedHz: cfg.SPIClockHz,
		}), nil
	default:
		return nil, fmt.Errorf("stm8gal: unsupported interface %q", cfg.Interface)
	}
}

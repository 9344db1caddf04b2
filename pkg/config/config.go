// Package config loads the programmer's configuration surface (spec.md
// §6) from a file, environment variables, and CLI flags via
// github.com/spf13/viper, the way the corpus's cobra+viper CLIs bind
// their flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MarkStokes71/stm8gal/pkg/codec"
	"github.com/MarkStokes71/stm8gal/pkg/frame"
	"github.com/MarkStokes71/stm8gal/pkg/orchestrator"
)

// InterfaceKind is the interface enum of spec.md §6.
type InterfaceKind string

const (
	InterfaceUART      InterfaceKind = "uart"
	InterfaceSPIDevice InterfaceKind = "spi-device"
	InterfaceSPIBridge InterfaceKind = "spi-bridge"
)

// FileSpec is one entry of the input-file or output-file list, carrying
// its format and, for output files, the region to export.
type FileSpec struct {
	Path   string
	Format string
	Lo, Hi int
}

// TransformSpec is one entry of the transform list (fill/clip/cut/copy/
// move), parsed from its flag/config representation.
type TransformSpec struct {
	Kind   string
	Lo, Hi int
	Value  byte
	DstLo  int
}

// Config is the fully-parsed, validated configuration surface of
// spec.md §6, before it is lowered into an orchestrator.Config (which
// additionally needs a constructed frame.Transport).
type Config struct {
	Port              string
	Baud              uint32
	SPIClockHz        uint32
	Interface         InterfaceKind
	UARTModeOverride  string // "", "full-duplex", "reply", "two-wire"
	ResetMethod       string // none, dtr, rts, gpio
	MassErase         bool
	EraseSectors      []int
	Verify            bool
	JumpAfter         string // "", or a hex/decimal address
	Inputs            []FileSpec
	Outputs           []FileSpec
	Transforms        []TransformSpec
	SyncAttempts      int
}

// New returns a Config with spec.md's implied defaults: no mass erase,
// no verify, no jump, full-duplex UART detection left to probing.
func New() *Config {
	return &Config{
		Baud:         115200,
		Interface:    InterfaceUART,
		ResetMethod:  "none",
		SyncAttempts: 5,
	}
}

// BindFlags registers this config's surface onto a pflag.FlagSet (the
// cobra command's own flags), then Load reads back whatever viper
// resolved across flags, environment, and config file.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("port", "", "transport device path (tty or spidev node)")
	flags.Uint32("baud", 115200, "UART baud rate")
	flags.Uint32("spi-clock-hz", 1_000_000, "SPI clock speed in Hz")
	flags.String("interface", "uart", "uart, spi-device, or spi-bridge")
	flags.String("uart-mode-override", "", "full-duplex, reply, or two-wire; empty probes")
	flags.String("reset-method", "none", "none, dtr, rts, or gpio")
	flags.Bool("mass-erase", false, "mass-erase flash before writing")
	flags.Bool("verify", false, "read back and compare after writing")
	flags.String("jump-after", "", "address to GO to after programming, or empty")
	flags.Int("sync-attempts", 5, "max SYNCH retries before giving up")
	flags.StringSlice("input", nil, "input-file:format[:base-addr] for raw format")
	flags.StringSlice("output", nil, "output-file:format:lo:hi")
	flags.StringSlice("transform", nil, "fill:lo:hi:value | clip:lo:hi | cut:lo:hi | copy:lo:hi:dst | move:lo:hi:dst")
	return v.BindPFlags(flags)
}

// Load reads a fully-bound viper instance into a Config, with
// STM8GAL_-prefixed environment variables taking precedence over a
// config file and being overridden by explicit CLI flags (viper's own
// precedence order).
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("STM8GAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := New()
	cfg.Port = v.GetString("port")
	cfg.Baud = v.GetUint32("baud")
	cfg.SPIClockHz = v.GetUint32("spi-clock-hz")
	cfg.Interface = InterfaceKind(v.GetString("interface"))
	cfg.UARTModeOverride = v.GetString("uart-mode-override")
	cfg.ResetMethod = v.GetString("reset-method")
	cfg.MassErase = v.GetBool("mass-erase")
	cfg.Verify = v.GetBool("verify")
	cfg.JumpAfter = v.GetString("jump-after")
	cfg.SyncAttempts = v.GetInt("sync-attempts")

	for _, raw := range v.GetStringSlice("input") {
		spec, err := parseFileSpec(raw, false)
		if err != nil {
			return nil, err
		}
		cfg.Inputs = append(cfg.Inputs, spec)
	}
	for _, raw := range v.GetStringSlice("output") {
		spec, err := parseFileSpec(raw, true)
		if err != nil {
			return nil, err
		}
		cfg.Outputs = append(cfg.Outputs, spec)
	}
	for _, raw := range v.GetStringSlice("transform") {
		t, err := parseTransformSpec(raw)
		if err != nil {
			return nil, err
		}
		cfg.Transforms = append(cfg.Transforms, t)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseFileSpec parses "path:format" (input) or "path:format:lo:hi"
// (output), with an optional trailing ":baseAddr" on raw-format inputs.
func parseFileSpec(raw string, isOutput bool) (FileSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return FileSpec{}, fmt.Errorf("config: %q must be path:format[:...]", raw)
	}
	spec := FileSpec{Path: parts[0], Format: parts[1]}
	if isOutput {
		if len(parts) != 4 {
			return FileSpec{}, fmt.Errorf("config: output %q must be path:format:lo:hi", raw)
		}
		lo, err := parseAddress(parts[2])
		if err != nil {
			return FileSpec{}, err
		}
		hi, err := parseAddress(parts[3])
		if err != nil {
			return FileSpec{}, err
		}
		spec.Lo, spec.Hi = lo, hi
	} else if len(parts) == 3 {
		lo, err := parseAddress(parts[2])
		if err != nil {
			return FileSpec{}, err
		}
		spec.Lo = lo
	}
	return spec, nil
}

// parseTransformSpec parses "kind:lo:hi[:value|:dst]" into a
// TransformSpec; fill's third field is a fill byte, copy/move's is a
// destination address, clip/cut take no third field.
func parseTransformSpec(raw string) (TransformSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return TransformSpec{}, fmt.Errorf("config: transform %q must be kind:lo:hi[:...]", raw)
	}
	lo, err := parseAddress(parts[1])
	if err != nil {
		return TransformSpec{}, err
	}
	hi, err := parseAddress(parts[2])
	if err != nil {
		return TransformSpec{}, err
	}
	t := TransformSpec{Kind: parts[0], Lo: lo, Hi: hi}
	switch t.Kind {
	case "fill":
		if len(parts) != 4 {
			return TransformSpec{}, fmt.Errorf("config: transform %q needs a fill value", raw)
		}
		v, err := parseAddress(parts[3])
		if err != nil {
			return TransformSpec{}, err
		}
		t.Value = byte(v)
	case "clip", "cut":
		if len(parts) != 3 {
			return TransformSpec{}, fmt.Errorf("config: transform %q takes no extra field", raw)
		}
	case "copy", "move":
		if len(parts) != 4 {
			return TransformSpec{}, fmt.Errorf("config: transform %q needs a destination address", raw)
		}
		dst, err := parseAddress(parts[3])
		if err != nil {
			return TransformSpec{}, err
		}
		t.DstLo = dst
	default:
		return TransformSpec{}, fmt.Errorf("config: unknown transform kind %q", t.Kind)
	}
	return t, nil
}

func parseAddress(s string) (int, error) {
	s = strings.TrimSpace(s)
	var v int64
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, err = fmt.Sscanf(s[2:], "%x", &v)
	} else {
		_, err = fmt.Sscanf(s, "%d", &v)
	}
	if err != nil {
		return 0, fmt.Errorf("config: invalid address %q: %w", s, err)
	}
	return int(v), nil
}

// Validate rejects configuration combinations spec.md §6/§7 rules out:
// an unknown interface, an unknown reset method, or an output file
// whose format/address fields don't parse.
func (c *Config) Validate() error {
	switch c.Interface {
	case InterfaceUART, InterfaceSPIDevice, InterfaceSPIBridge:
	default:
		return fmt.Errorf("config: unknown interface %q", c.Interface)
	}
	switch c.ResetMethod {
	case "", "none", "dtr", "rts", "gpio":
	default:
		return fmt.Errorf("config: unknown reset method %q", c.ResetMethod)
	}
	for _, in := range c.Inputs {
		if _, err := codec.ParseKind(in.Format); err != nil {
			return fmt.Errorf("config: input %s: %w", in.Path, err)
		}
	}
	for _, out := range c.Outputs {
		if _, err := codec.ParseKind(out.Format); err != nil {
			return fmt.Errorf("config: output %s: %w", out.Path, err)
		}
		if out.Lo > out.Hi {
			return fmt.Errorf("config: output %s has lo > hi", out.Path)
		}
	}
	return nil
}

// uartModeFromOverride translates the string form of
// uart_mode_override into a *frame.Mode, or nil if probing should
// happen instead.
func uartModeFromOverride(s string) (*frame.Mode, error) {
	var m frame.Mode
	switch s {
	case "":
		return nil, nil
	case "full-duplex":
		m = frame.ModeFullDuplex
	case "reply":
		m = frame.ModeReply
	case "two-wire":
		m = frame.ModeTwoWire
	default:
		return nil, fmt.Errorf("config: unknown uart_mode_override %q", s)
	}
	return &m, nil
}

// ToOrchestratorConfig lowers c into an orchestrator.Config bound to an
// already-constructed (not yet opened; orchestrator.Run opens it)
// transport; callers supply the transport because its
// construction (uart.New / spidev.New / usbbridge.New) depends on
// c.Interface in a way config.Config itself stays agnostic to (pkg/config
// doesn't import the transport packages, keeping the dependency direction
// config -> orchestrator only).
func (c *Config) ToOrchestratorConfig(tr frame.Transport) (orchestrator.Config, error) {
	mode, err := uartModeFromOverride(c.UARTModeOverride)
	if err != nil {
		return orchestrator.Config{}, err
	}
	kind := frame.KindUART
	if c.Interface == InterfaceSPIDevice {
		kind = frame.KindSPI
	}

	oc := orchestrator.Config{
		Transport:        tr,
		Kind:             kind,
		UARTModeOverride: mode,
		Reset:            orchestrator.ResetMethod(c.ResetMethod),
		SyncAttempts:     c.SyncAttempts,
		MassErase:        c.MassErase,
		EraseSectors:     c.EraseSectors,
		Verify:           c.Verify,
	}
	for _, t := range c.Transforms {
		oc.Transforms = append(oc.Transforms, orchestrator.Transform{
			Kind: t.Kind, Lo: t.Lo, Hi: t.Hi, Value: t.Value, DstLo: t.DstLo,
		})
	}
	for _, in := range c.Inputs {
		k, err := codec.ParseKind(in.Format)
		if err != nil {
			return orchestrator.Config{}, err
		}
		oc.Inputs = append(oc.Inputs, orchestrator.InputFile{
			Path:   in.Path,
			Format: codec.Format{Kind: k, RawBaseAddr: in.Lo},
		})
	}
	for _, out := range c.Outputs {
		k, err := codec.ParseKind(out.Format)
		if err != nil {
			return orchestrator.Config{}, err
		}
		oc.ReadOut = append(oc.ReadOut, orchestrator.OutputFile{
			Path:   out.Path,
			Format: codec.Format{Kind: k},
			Lo:     out.Lo,
			Hi:     out.Hi,
		})
	}
	if c.JumpAfter != "" {
		addr, err := parseAddress(c.JumpAfter)
		if err != nil {
			return orchestrator.Config{}, err
		}
		a := uint32(addr)
		oc.JumpAfter = &a
	}
	return oc, nil
}

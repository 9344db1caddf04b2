package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkStokes71/stm8gal/pkg/orchestrator"
)

func newTestViper(t *testing.T, args []string) *viper.Viper {
	t.Helper()
	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, flags))
	require.NoError(t, flags.Parse(args))
	return v
}

func TestLoadDefaults(t *testing.T) {
	v := newTestViper(t, nil)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, uint32(115200), cfg.Baud)
	assert.Equal(t, InterfaceUART, cfg.Interface)
	assert.Equal(t, "none", cfg.ResetMethod)
	assert.Equal(t, 5, cfg.SyncAttempts)
	assert.Empty(t, cfg.Inputs)
}

func TestLoadParsesInputAndOutputFiles(t *testing.T) {
	v := newTestViper(t, []string{
		"--input=firmware.hex:ihex",
		"--input=patch.bin:raw:0x8000",
		"--output=readback.bin:raw:0x8000:0x80FF",
	})
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Len(t, cfg.Inputs, 2)
	assert.Equal(t, "firmware.hex", cfg.Inputs[0].Path)
	assert.Equal(t, "ihex", cfg.Inputs[0].Format)
	assert.Equal(t, 0x8000, cfg.Inputs[1].Lo)

	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, 0x8000, cfg.Outputs[0].Lo)
	assert.Equal(t, 0x80FF, cfg.Outputs[0].Hi)
}

func TestLoadRejectsUnknownInterface(t *testing.T) {
	v := newTestViper(t, []string{"--interface=carrier-pigeon"})
	_, err := Load(v)
	require.Error(t, err)
}

func TestLoadRejectsMalformedOutputSpec(t *testing.T) {
	v := newTestViper(t, []string{"--output=readback.bin:raw"})
	_, err := Load(v)
	require.Error(t, err)
}

func TestLoadRejectsInvertedOutputRegion(t *testing.T) {
	v := newTestViper(t, []string{"--output=readback.bin:raw:0x8100:0x8000"})
	_, err := Load(v)
	require.Error(t, err)
}

func TestToOrchestratorConfigTranslatesResetAndJump(t *testing.T) {
	v := newTestViper(t, []string{"--reset-method=dtr", "--jump-after=0x8000"})
	cfg, err := Load(v)
	require.NoError(t, err)

	oc, err := cfg.ToOrchestratorConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResetDTR, oc.Reset)
	require.NotNil(t, oc.JumpAfter)
	assert.Equal(t, uint32(0x8000), *oc.JumpAfter)
}

func TestLoadParsesTransforms(t *testing.T) {
	v := newTestViper(t, []string{
		"--transform=fill:0x8000:0x80FF:0xFF",
		"--transform=move:0x9000:0x90FF:0xA000",
	})
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Len(t, cfg.Transforms, 2)
	assert.Equal(t, "fill", cfg.Transforms[0].Kind)
	assert.Equal(t, byte(0xFF), cfg.Transforms[0].Value)
	assert.Equal(t, "move", cfg.Transforms[1].Kind)
	assert.Equal(t, 0xA000, cfg.Transforms[1].DstLo)
}

func TestLoadRejectsUnknownTransformKind(t *testing.T) {
	v := newTestViper(t, []string{"--transform=teleport:0x100:0x200"})
	_, err := Load(v)
	require.Error(t, err)
}

func TestToOrchestratorConfigRejectsUnknownUARTModeOverride(t *testing.T) {
	v := newTestViper(t, []string{"--uart-mode-override=sideways"})
	cfg, err := Load(v)
	require.NoError(t, err)
	_, err = cfg.ToOrchestratorConfig(nil)
	require.Error(t, err)
}

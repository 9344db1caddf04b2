package spidev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushIsNoop(t *testing.T) {
	tr := New(Config{})
	require.NoError(t, tr.Flush())
}

func TestSetResetLineIsNoop(t *testing.T) {
	tr := New(Config{})
	require.NoError(t, tr.SetResetLine(true))
	require.NoError(t, tr.SetResetLine(false))
}

func TestOpenMissingDeviceFails(t *testing.T) {
	tr := New(Config{Device: "/dev/does-not-exist-stm8gal-test"})
	err := tr.Open()
	require.Error(t, err)
}

func TestTransferEmptySendIsNoop(t *testing.T) {
	tr := &Transport{cfg: Config{}, fd: -1}
	// An empty Send never reaches the ioctl, so it succeeds even
	// without an opened device.
	assert.NoError(t, tr.Send(nil))
}

package uart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResetMethod(t *testing.T) {
	cases := map[string]ResetMethod{"": ResetNone, "none": ResetNone, "dtr": ResetDTR, "rts": ResetRTS}
	for in, want := range cases {
		got, err := ParseResetMethod(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseResetMethod("gpio")
	require.Error(t, err)
	_, err = ParseResetMethod("bogus")
	require.Error(t, err)
}

func TestSetResetLineNoopWithoutConfiguredMethod(t *testing.T) {
	tr := New(Config{Reset: ResetNone})
	require.NoError(t, tr.SetResetLine(true))
	require.NoError(t, tr.SetResetLine(false))
}

// TestSendRecvRoundTripsOverPTY exercises the real Linux tty path: bytes
// sent with Transport.Send on one end of a pseudoterminal pair arrive on
// the other via Transport.Recv, whose deadline bookkeeping covers the
// case where more than one read() is needed to fill the buffer.
func TestSendRecvRoundTripsOverPTY(t *testing.T) {
	master, slave, err := openPTYPair()
	if err != nil {
		t.Skipf("no pseudoterminal support in this environment: %v", err)
	}
	defer master.Close()
	defer slave.Close()

	tr := &Transport{cfg: Config{ReadTimeout: time.Second}, p: slave}

	want := []byte{0x7F, 0x79, 0x1F, 0xAA, 0x00, 0xFF}
	go func() {
		_ = (&Transport{p: master}).Send(want)
	}()

	got, err := tr.Recv(len(want), time.Second)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecvTimesOutWithPartialData(t *testing.T) {
	master, slave, err := openPTYPair()
	if err != nil {
		t.Skipf("no pseudoterminal support in this environment: %v", err)
	}
	defer master.Close()
	defer slave.Close()

	tr := &Transport{cfg: Config{}, p: slave}
	_, _ = master.Write([]byte{0x01, 0x02})

	_, err = tr.Recv(5, 50*time.Millisecond)
	require.Error(t, err)
}

// ABOUTME: Tests for command encoding and decoding.
// ABOUTME: Covers round-trips for every variant and clean failures on truncated or foreign bytes.

package command

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allVariants() []Command {
	return []Command{
		Update(),
		Ping(),
		Identify("worker-1"),
		Identify(""),
		Custom("reload"),
		Custom(""),
		Custom("multi word payload with ünïcode"),
		Pong(),
	}
}

func TestRoundTrip(t *testing.T) {
	for _, c := range allVariants() {
		t.Run(c.String(), func(t *testing.T) {
			b, err := Encode(c)
			require.NoError(t, err)

			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, c, got)
			assert.Equal(t, c.Kind(), got.Kind())
			assert.Equal(t, c.Hostname(), got.Hostname())
			assert.Equal(t, c.Data(), got.Data())
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a, err := Encode(Identify("h1"))
	require.NoError(t, err)
	b, err := Encode(Identify("h1"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncode_ZeroValueFails(t *testing.T) {
	_, err := Encode(Command{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncode))
}

func TestDecode_TruncatedFailsCleanly(t *testing.T) {
	for _, c := range allVariants() {
		b, err := Encode(c)
		require.NoError(t, err)

		for i := 0; i < len(b); i++ {
			_, err := Decode(b[:i])
			assert.ErrorIs(t, err, ErrDecode, "%s truncated to %d bytes", c, i)
		}
	}
}

func TestDecode_TrailingBytesRejected(t *testing.T) {
	b, err := Encode(Ping())
	require.NoError(t, err)

	_, err = Decode(append(b, 0x00))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecode_RandomBytesNeverPanic(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 2000; i++ {
		buf := make([]byte, r.IntN(64))
		for j := range buf {
			buf[j] = byte(r.UintN(256))
		}
		assert.NotPanics(t, func() {
			_, _ = Decode(buf)
		})
	}
}

func TestDecode_ForeignData(t *testing.T) {
	mustMarshal := func(v any) []byte {
		b, err := cbor.Marshal(v)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"json text", []byte(`{"Custom":{"data":"PONG"}}`)},
		{"cbor integer", mustMarshal(42)},
		{"cbor null", mustMarshal(nil)},
		{"unknown kind", mustMarshal(map[int]string{1: "reboot"})},
		{"missing kind", mustMarshal(map[int]string{3: "x"})},
		{"unknown key", mustMarshal(map[int]string{1: "ping", 9: "x"})},
		{"ping with payload", mustMarshal(map[int]string{1: "ping", 3: "x"})},
		{"identify without hostname", mustMarshal(map[int]string{1: "identify"})},
		{"identify with data", mustMarshal(map[int]string{1: "identify", 2: "h", 3: "d"})},
		{"custom without data", mustMarshal(map[int]string{1: "custom"})},
		{"wrong field type", mustMarshal(map[int]any{1: "custom", 3: 7})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestCommand_IsPong(t *testing.T) {
	assert.True(t, Pong().IsPong())
	assert.True(t, Custom("PONG").IsPong())
	assert.False(t, Custom("pong").IsPong())
	assert.False(t, Ping().IsPong())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "update", KindUpdate.String())
	assert.Equal(t, "custom", KindCustom.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

package identity

import (
	"crypto/rand"
	"testing"

	"github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func TestSS58RoundTrip(t *testing.T) {
	var key [HotkeyLength]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)

	encoded, err := EncodeSS58(SS58Prefix, key[:])
	require.NoError(t, err)

	prefix, decoded, err := DecodeSS58(encoded)
	require.NoError(t, err)
	require.Equal(t, uint16(SS58Prefix), prefix)
	require.Equal(t, key[:], decoded)
}

func TestSS58RoundTripFuzz(t *testing.T) {
	f := fuzz.New()
	for i := 0; i < 200; i++ {
		var key [HotkeyLength]byte
		f.Fuzz(&key)
		var prefix uint16
		f.Fuzz(&prefix)
		prefix %= 16384

		encoded, err := EncodeSS58(prefix, key[:])
		require.NoError(t, err)

		gotPrefix, gotKey, err := DecodeSS58(encoded)
		require.NoError(t, err)
		require.Equal(t, prefix, gotPrefix)
		require.Equal(t, key[:], gotKey)
	}
}

func TestParseHotkeyHexForms(t *testing.T) {
	var key Hotkey
	key[0] = 0xab
	key[31] = 0xcd

	got, err := ParseHotkey(key.String())
	require.NoError(t, err)
	require.Equal(t, key, got)

	got, err = ParseHotkey(key.String()[2:]) // without 0x
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestDecodeSS58BadChecksum(t *testing.T) {
	var key [HotkeyLength]byte
	encoded, err := EncodeSS58(SS58Prefix, key[:])
	require.NoError(t, err)

	// flip the last character to corrupt the checksum.
	corrupted := []byte(encoded)
	if corrupted[len(corrupted)-1] == 'a' {
		corrupted[len(corrupted)-1] = 'b'
	} else {
		corrupted[len(corrupted)-1] = 'a'
	}

	_, _, err = DecodeSS58(string(corrupted))
	require.Error(t, err)
}

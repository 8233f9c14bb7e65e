// Package identity implements the hotkey/coldkey textual forms and the
// opaque challenge identifier used throughout the validator core.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"

	"github.com/decred/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/platform-net/validator-core/errs"
)

// HotkeyLength is the size in bytes of an ed25519 public key.
const HotkeyLength = ed25519.PublicKeySize // 32

// SS58Prefix is the network prefix used by this ecosystem's textual form.
const SS58Prefix = 42

// Hotkey is a 32-byte ed25519 public key. Equality is bytewise.
type Hotkey [HotkeyLength]byte

// ParseHotkey accepts either 64 lowercase hex characters (optional 0x
// prefix) or an SS58-encoded string and returns the decoded bytes.
func ParseHotkey(s string) (Hotkey, error) {
	const op = "identity.ParseHotkey"
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed) == HotkeyLength*2 && isHex(trimmed) {
		var hk Hotkey
		if _, err := hex.Decode(hk[:], []byte(strings.ToLower(trimmed))); err != nil {
			return Hotkey{}, errs.E(op, errs.Crypto, err)
		}
		return hk, nil
	}
	_, key, err := DecodeSS58(s)
	if err != nil {
		return Hotkey{}, errs.E(op, errs.Crypto, err)
	}
	var hk Hotkey
	copy(hk[:], key)
	return hk, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

// String renders the hotkey in its canonical 0x-prefixed hex form.
func (h Hotkey) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// SS58 renders the hotkey in its SS58 textual form under the given network prefix.
func (h Hotkey) SS58(prefix uint16) (string, error) {
	return EncodeSS58(prefix, h[:])
}

// ss58ChecksumPrefix is the fixed domain-separation tag used when computing
// the blake2b_512 checksum, per spec.md §6.
var ss58ChecksumPrefix = []byte("SS58PRE")

func prefixBytes(prefix uint16) []byte {
	if prefix > 16383 {
		// Only single-byte-compatible prefixes (0-63) are represented
		// with one byte; everything up to 16383 uses the documented
		// two-byte little-endian scheme used by this ecosystem.
	}
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	// two-byte form: matches the "SCALE-like" encoding used by ecosystems
	// with an SS58-style address format for prefixes in [64, 16383].
	b0 := byte(0b01000000 | (prefix & 0b0011_1111))
	b1 := byte(prefix >> 6)
	return []byte{b0, b1}
}

// EncodeSS58 encodes key under the given network prefix as
// base58(prefix_bytes || key || checksum[:2]) where checksum is the first
// two bytes of blake2b_512("SS58PRE" || prefix_bytes || key).
func EncodeSS58(prefix uint16, key []byte) (string, error) {
	const op = "identity.EncodeSS58"
	if len(key) != HotkeyLength {
		return "", errs.E(op, errs.Validation, errors.Errorf("key must be %d bytes, got %d", HotkeyLength, len(key)))
	}
	if prefix > 16383 {
		return "", errs.E(op, errs.Validation, errors.Errorf("prefix %d exceeds 16383", prefix))
	}
	pb := prefixBytes(prefix)
	payload := make([]byte, 0, len(pb)+len(key))
	payload = append(payload, pb...)
	payload = append(payload, key...)

	sum := blake2b.Sum512(append(append([]byte{}, ss58ChecksumPrefix...), payload...))
	full := append(payload, sum[:2]...)
	return base58.Encode(full), nil
}

// DecodeSS58 decodes an SS58 string, returning the network prefix and the
// raw key bytes. The checksum is verified against blake2b_512.
func DecodeSS58(s string) (uint16, []byte, error) {
	const op = "identity.DecodeSS58"
	raw := base58.Decode(s)
	if len(raw) == 0 {
		return 0, nil, errs.E(op, errs.Crypto, errors.New("invalid base58"))
	}

	var prefix uint16
	var pbLen int
	if raw[0]&0b0100_0000 == 0 {
		prefix = uint16(raw[0])
		pbLen = 1
	} else {
		if len(raw) < 2 {
			return 0, nil, errs.E(op, errs.Crypto, errors.New("truncated prefix"))
		}
		prefix = uint16(raw[0]&0b0011_1111) | (uint16(raw[1]) << 6)
		pbLen = 2
	}

	if len(raw) != pbLen+HotkeyLength+2 {
		return 0, nil, errs.E(op, errs.Crypto, errors.Errorf("unexpected decoded length %d", len(raw)))
	}
	payload := raw[:pbLen+HotkeyLength]
	checksum := raw[pbLen+HotkeyLength:]

	sum := blake2b.Sum512(append(append([]byte{}, ss58ChecksumPrefix...), payload...))
	if sum[0] != checksum[0] || sum[1] != checksum[1] {
		return 0, nil, errs.E(op, errs.Crypto, errors.New("checksum mismatch"))
	}

	key := make([]byte, HotkeyLength)
	copy(key, payload[pbLen:])
	return prefix, key, nil
}

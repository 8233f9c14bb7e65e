package identity

import (
	"bytes"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/platform-net/validator-core/errs"
)

func errInvalidChallengeID(s string) error {
	return errs.E("identity.ParseChallengeID", errs.Validation, errors.Errorf("invalid challenge id %q", s))
}

// ChallengeID is an opaque 128-bit challenge identifier (UUID v4) with a
// total order over its byte representation.
type ChallengeID [16]byte

// NewChallengeID generates a random (v4) challenge identifier.
func NewChallengeID() ChallengeID {
	var id ChallengeID
	copy(id[:], uuid.NewRandom())
	return id
}

// ParseChallengeID parses the canonical UUID textual form.
func ParseChallengeID(s string) (ChallengeID, error) {
	u := uuid.Parse(s)
	var id ChallengeID
	if u == nil {
		return id, errInvalidChallengeID(s)
	}
	copy(id[:], u)
	return id, nil
}

func (c ChallengeID) String() string {
	return uuid.UUID(c[:]).String()
}

// Less reports whether c orders before other under bytewise comparison.
func (c ChallengeID) Less(other ChallengeID) bool {
	return bytes.Compare(c[:], other[:]) < 0
}

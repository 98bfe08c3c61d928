package ceremony

import (
	"strconv"

	apperrors "github.com/louisbranch/latchkey/internal/platform/errors"
)

// ValidateSignCount enforces sign-count monotonicity for an assertion.
//
// A reported count must be strictly greater than the stored one. The single
// exception is 0 == 0: authenticators without a counter always report zero.
// A stale or repeated count means the private key may exist in more than one
// place.
func ValidateSignCount(stored, reported uint32) error {
	if reported > stored {
		return nil
	}
	if reported == 0 && stored == 0 {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodePossibleCloneDetected, "authenticator sign count did not advance", map[string]string{
		"stored_sign_count":   strconv.FormatUint(uint64(stored), 10),
		"reported_sign_count": strconv.FormatUint(uint64(reported), 10),
	})
}

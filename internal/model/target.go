package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTargetID is returned for an empty or non-alphanumeric target id.
var ErrInvalidTargetID = errors.New("invalid target id")

// maxTargetIDLength bounds ids; listing ids are short stock codes.
const maxTargetIDLength = 32

// NormalizeTargetID trims surrounding space and checks that id is a
// non-empty ASCII alphanumeric string, e.g. "601360".
func NormalizeTargetID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTargetID)
	}
	if len(id) > maxTargetIDLength {
		return "", fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidTargetID, id, maxTargetIDLength)
	}
	for _, r := range id {
		isDigit := r >= '0' && r <= '9'
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isDigit && !isLetter {
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidTargetID, id, r)
		}
	}
	return id, nil
}

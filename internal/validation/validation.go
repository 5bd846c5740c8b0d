package validation

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUserIDEmpty is returned when the id is empty or whitespace-only after trim.
var ErrUserIDEmpty = errors.New("user id is required")

// ErrUserIDInvalid is returned when the id is not a base-10 integer.
var ErrUserIDInvalid = errors.New("user id must be an integer")

// ErrUserIDOutOfRange is returned for ids below 1 or beyond int64.
var ErrUserIDOutOfRange = errors.New("user id out of range")

// ParseUserID trims raw and parses it as a positive base-10 int64.
// Returns an error suitable for 400 INVALID_USER_ID responses.
func ParseUserID(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrUserIDEmpty
	}
	for _, c := range s {
		if c != '-' && c != '+' && (c < '0' || c > '9') {
			return 0, ErrUserIDInvalid
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, ErrUserIDOutOfRange
		}
		return 0, ErrUserIDInvalid
	}
	if id < 1 {
		return 0, ErrUserIDOutOfRange
	}
	return id, nil
}

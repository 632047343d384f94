// Package fname extracts id and timestamp tokens from the underscore-delimited
// file names used by the market data source trees.
package fname

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is returned when a file name does not carry the expected token.
var ErrMalformed = errors.New("fname: malformed file name")

// field returns the i-th underscore-delimited field of the base name,
// with any extension suffix removed.
func field(name string, i int) (string, error) {
	base := filepath.Base(name)
	parts := strings.Split(base, "_")
	if i >= len(parts) {
		return "", fmt.Errorf("%w: %q has no field %d", ErrMalformed, base, i)
	}
	f := parts[i]
	if dot := strings.IndexByte(f, '.'); dot >= 0 {
		f = f[:dot]
	}
	if f == "" {
		return "", fmt.Errorf("%w: %q field %d is empty", ErrMalformed, base, i)
	}
	return f, nil
}

// ID extracts the integer id from the second underscore field of name.
func ID(name string) (int64, error) {
	f, err := field(name, 1)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(f, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformed, filepath.Base(name), err)
	}
	return id, nil
}

// Captured extracts the capture time from the third underscore field of name.
// The token is milliseconds since epoch.
func Captured(name string) (time.Time, error) {
	f, err := field(name, 2)
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(f, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformed, filepath.Base(name), err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

package storage

import (
	"fmt"
	"regexp"
	"strings"
)

// keySegmentPattern bounds each path segment of an object key. Segments
// start alphanumeric, so "." and ".." can never appear.
var keySegmentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ValidateKey rejects keys that are empty, absolute, or could step out of
// the bucket namespace.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, segment := range strings.Split(key, "/") {
		if !keySegmentPattern.MatchString(segment) {
			return fmt.Errorf("%w: segment %q", ErrInvalidKey, segment)
		}
	}
	return nil
}

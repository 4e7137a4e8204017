// Package userid holds the naming rule for enrolled identities. An identity
// names a directory under the data directory, so it must be a single path
// element that is not hidden.
package userid

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned for identities that cannot be used as a
// directory name.
var ErrInvalid = errors.New("invalid identity")

// Validate checks that id is usable as a directory name.
func Validate(id string) error {
	if id == "" || strings.HasPrefix(id, ".") || strings.ContainsAny(id, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalid, id)
	}
	return nil
}

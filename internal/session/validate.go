package session

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ErrEmptyOwner is returned when no owner id could be determined.
var ErrEmptyOwner = errors.New("owner id is empty")

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// ValidateOwnerID checks that an owner id can be embedded in provider URLs and bus keys.
func ValidateOwnerID(owner string) error {
	if owner == "" {
		return ErrEmptyOwner
	}
	if len(owner) > 128 || strings.ContainsAny(owner, "/?#% \t\n") {
		return fmt.Errorf("invalid owner id %q", owner)
	}
	return nil
}

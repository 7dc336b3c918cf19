package profile

import (
	"fmt"
	"regexp"
)

// Profile names become directory and socket names.
var validName = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName rejects names that are not safe as a path component.
func ValidateName(name string) error {
	if validName.MatchString(name) {
		return nil
	}
	return fmt.Errorf("invalid profile name %q: use 1-64 lowercase letters, digits, '-' or '_'", name)
}

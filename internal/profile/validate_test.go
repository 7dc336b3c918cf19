package profile

import (
	"strings"
	"testing"
)

func TestValidateNameAccepts(t *testing.T) {
	for _, name := range []string{"main", "vet42", "dog-walker", "cat_sitter", strings.Repeat("p", 64)} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v", name, err)
		}
	}
}

func TestValidateNameRejects(t *testing.T) {
	for _, name := range []string{"", "Main", "my profile", "my.profile", "../main", "a/b", strings.Repeat("p", 65)} {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) accepted", name)
		}
	}
}

package confirm

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestTerminal(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		c := Terminal{In: strings.NewReader(tt.input), Out: &out}
		if got := c.Confirm(context.Background(), "Remove Rex?"); got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.HasPrefix(out.String(), "Remove Rex? [y/N]") {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestApproved(t *testing.T) {
	ctx := context.Background()
	if Approved(ctx, nil, "x") {
		t.Error("nil confirmer approved")
	}
	if !Approved(ctx, Answer(true), "x") {
		t.Error("Answer(true) declined")
	}
	if Approved(ctx, Answer(false), "x") {
		t.Error("Answer(false) approved")
	}
	var seen string
	f := Func(func(_ context.Context, p string) bool { seen = p; return true })
	if !Approved(ctx, f, "delete?") || seen != "delete?" {
		t.Errorf("Func not consulted, seen %q", seen)
	}
}

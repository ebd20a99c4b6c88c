package aggregates

import (
	"errors"
	"testing"
)

func TestWrapKeepsExistingCode(t *testing.T) {
	in := NewError(CodeNotFound, "Chat.Locate", "missing user", nil)
	out := Wrap(CodeInternal, "outer", in)
	if CodeOf(out) != CodeNotFound {
		t.Fatalf("code: want=%s got=%s", CodeNotFound, CodeOf(out))
	}
}

func TestCodeOfForeignError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != "" {
		t.Fatalf("foreign code: got=%q", got)
	}
	if !IsCode(Validation("op", "bad %s", "x"), CodeValidation) {
		t.Fatalf("expected validation code")
	}
}

func TestErrorString(t *testing.T) {
	err := NotFound("Chat.Append", "conversation %s", "c1")
	if got := err.Error(); got != "Chat.Append: conversation c1 (not_found)" {
		t.Fatalf("Error(): %q", got)
	}
}

package envutil

import (
	"testing"
	"time"
)

func TestIntAndBool(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_INT", "12")
	t.Setenv("ENVUTIL_TEST_BAD", "twelve")
	t.Setenv("ENVUTIL_TEST_BOOL", "yes")

	if got := Int("ENVUTIL_TEST_INT", 3); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
	if got := Int("ENVUTIL_TEST_BAD", 3); got != 3 {
		t.Fatalf("Int fallback: want=3 got=%d", got)
	}
	if got := Int("ENVUTIL_TEST_MISSING", 7); got != 7 {
		t.Fatalf("Int missing: want=7 got=%d", got)
	}
	if !Bool("ENVUTIL_TEST_BOOL", false) {
		t.Fatalf("Bool: want=true")
	}
	if Bool("ENVUTIL_TEST_MISSING", false) {
		t.Fatalf("Bool missing: want=false")
	}
}

func TestSeconds(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_SECONDS", "30")
	if got := Seconds("ENVUTIL_TEST_SECONDS", time.Second); got != 30*time.Second {
		t.Fatalf("Seconds: want=30s got=%s", got)
	}
	t.Setenv("ENVUTIL_TEST_SECONDS", "-1")
	if got := Seconds("ENVUTIL_TEST_SECONDS", time.Second); got != time.Second {
		t.Fatalf("Seconds negative: want=1s got=%s", got)
	}
}

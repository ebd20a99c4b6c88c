package pointers

import "strings"

func String(v string) *string { return &v }

// NonEmpty returns nil for a blank string, so optional unique columns stay
// NULL instead of colliding on "".
func NonEmpty(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

// Value dereferences p, or returns "" for nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

package user

import (
	"fmt"
	"strings"
)

type IdentifierKind string

const (
	KindPhone  IdentifierKind = "phone"
	KindEmail  IdentifierKind = "email"
	KindOpaque IdentifierKind = "opaque"
)

// Identifier is the caller-tagged external identity of an inbound request.
// Channels say which namespace the value lives in; nothing is sniffed.
type Identifier struct {
	Kind  IdentifierKind `json:"kind"`
	Value string         `json:"value"`
}

func Phone(v string) Identifier  { return Identifier{Kind: KindPhone, Value: v} }
func Email(v string) Identifier  { return Identifier{Kind: KindEmail, Value: v} }
func Opaque(v string) Identifier { return Identifier{Kind: KindOpaque, Value: v} }

// ParseKind accepts the wire names of identifier kinds.
func ParseKind(s string) (IdentifierKind, error) {
	switch IdentifierKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPhone:
		return KindPhone, nil
	case KindEmail:
		return KindEmail, nil
	case KindOpaque, "":
		return KindOpaque, nil
	default:
		return "", fmt.Errorf("unknown identifier kind %q", s)
	}
}

// Normalize trims the value, lowercases emails and strips a transport prefix
// such as "whatsapp:" from phone numbers.
func (id Identifier) Normalize() Identifier {
	v := strings.TrimSpace(id.Value)
	switch id.Kind {
	case KindPhone:
		if i := strings.Index(v, ":"); i >= 0 {
			v = strings.TrimSpace(v[i+1:])
		}
	case KindEmail:
		v = NormalizeEmail(v)
	}
	return Identifier{Kind: id.Kind, Value: v}
}

func (id Identifier) Validate() error {
	switch id.Kind {
	case KindPhone, KindEmail, KindOpaque:
	default:
		return fmt.Errorf("unknown identifier kind %q", id.Kind)
	}
	if strings.TrimSpace(id.Value) == "" {
		return fmt.Errorf("empty %s identifier", id.Kind)
	}
	return nil
}

// Column is the user column holding identifiers of this kind.
func (id Identifier) Column() string {
	switch id.Kind {
	case KindPhone:
		return "phone_number"
	case KindEmail:
		return "email"
	default:
		return "external_id"
	}
}

func (id Identifier) String() string {
	return string(id.Kind) + ":" + id.Value
}

// PlaceholderEmail derives a unique stand-in email for identities that
// arrive without one.
func PlaceholderEmail(value string) string {
	return NormalizeEmail(strings.TrimSpace(value) + "@example.com")
}

func NormalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

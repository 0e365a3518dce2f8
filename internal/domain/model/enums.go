package model

import (
	"fmt"
	"strings"
)

// AuthMethod identifies how a credential's refresh token is exchanged.
type AuthMethod string

const (
	AuthMethodSocial AuthMethod = "social"
	AuthMethodIDC    AuthMethod = "idc"
)

// ParseAuthMethod maps user input onto an AuthMethod. Empty input yields the
// social default; "builder-id" and "iam" are accepted aliases of idc.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "social":
		return AuthMethodSocial, nil
	case "idc", "builder-id", "iam":
		return AuthMethodIDC, nil
	default:
		return "", InvalidCredential(fmt.Sprintf("unknown auth method %q", s))
	}
}

// Lifecycle is the two-state life of a stored credential. Deleted is terminal.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleDeleted Lifecycle = "deleted"
)

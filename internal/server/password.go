package server

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// passwordCheck verifies the connection password sent with PASS. A configured
// secret that looks like a bcrypt hash is compared as one.
type passwordCheck struct {
	secret []byte
	hashed bool
}

func newPasswordCheck(secret string) *passwordCheck {
	if secret == "" {
		return nil
	}
	hashed := strings.HasPrefix(secret, "$2a$") ||
		strings.HasPrefix(secret, "$2b$") ||
		strings.HasPrefix(secret, "$2y$")
	return &passwordCheck{secret: []byte(secret), hashed: hashed}
}

func (p *passwordCheck) match(candidate string) bool {
	if p.hashed {
		return bcrypt.CompareHashAndPassword(p.secret, []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare(p.secret, []byte(candidate)) == 1
}

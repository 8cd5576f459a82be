package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// MaxEmailLength is the RFC 5321 limit for a full address.
const MaxEmailLength = 254

var (
	ErrEmailRequired = errors.New("email address is required")
	ErrEmailTooLong  = fmt.Errorf("email address is too long (max %d characters)", MaxEmailLength)
	ErrInvalidEmail  = errors.New("invalid email address format")
)

// ValidateEmail checks that email is a single bare address that a
// notification can be delivered to.
func ValidateEmail(email string) error {
	trimmed := strings.TrimSpace(email)

	if trimmed == "" {
		return ErrEmailRequired
	}

	if len(trimmed) > MaxEmailLength {
		return ErrEmailTooLong
	}

	// Display names and angle brackets are not accepted from identity claims.
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || addr.Name != "" {
		return ErrInvalidEmail
	}

	return nil
}

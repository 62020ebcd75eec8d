package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 12

// passwordSpecials are the characters accepted as "special".
const passwordSpecials = "!@#$%^&*(),.?\":{}|<>-_=+[]\\;'/`~"

var ErrWeakPassword = errors.New("weak password")

// ValidatePassword enforces the account password policy. The returned error
// wraps ErrWeakPassword and names the first rule that failed.
func ValidatePassword(pw string) error {
	if pw == "" {
		return fmt.Errorf("%w: password is required", ErrWeakPassword)
	}
	if len([]rune(pw)) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrWeakPassword, MinPasswordLength)
	}

	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	switch {
	case !upper:
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrWeakPassword)
	case !lower:
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrWeakPassword)
	case !digit:
		return fmt.Errorf("%w: password must contain at least one number", ErrWeakPassword)
	case !special:
		return fmt.Errorf("%w: password must contain at least one special character", ErrWeakPassword)
	}
	return nil
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

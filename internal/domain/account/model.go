package account

import (
	"errors"
	"time"
)

const (
	MaxFailedLogins = 5
	LockoutDuration = 15 * time.Minute
)

var (
	ErrMissingCredentials = errors.New("username and password required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked. try again later")
	ErrNotFound           = errors.New("not found")
	ErrUsernameTaken      = errors.New("username already exists")
)

// User is a clinician or administrator account.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	FullName     string     `json:"fullName,omitempty"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"-"`
	FailedLogins int        `json:"-"`
	LockedUntil  *time.Time `json:"-"`
	LastLogin    *time.Time `json:"-"`
}

// DisplayName prefers the full name.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// UserSummary is an account as administrators see it.
type UserSummary struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	Role           string     `json:"role"`
	FullName       string     `json:"full_name"`
	FailedAttempts int        `json:"failed_attempts"`
	IsLocked       bool       `json:"is_locked"`
	LockedUntil    *time.Time `json:"locked_until"`
	LastLogin      *time.Time `json:"last_login"`
}

func (u *User) Summary(now time.Time) UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		Role:           u.Role,
		FullName:       u.FullName,
		FailedAttempts: u.FailedLogins,
		IsLocked:       u.Locked(now),
		LockedUntil:    u.LockedUntil,
		LastLogin:      u.LastLogin,
	}
}

// ResetPasswordRequest is the body of PUT /api/users/{id}/reset-password.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// UnlockResult answers POST /api/users/{id}/unlock.
type UnlockResult struct {
	OK   bool        `json:"ok"`
	User UserSummary `json:"user"`
}

// Profile is what login and me return about the caller.
type Profile struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult carries the bearer token in session_id.
type LoginResult struct {
	Profile
	SessionID string `json:"session_id"`
}

// Session is a server-side login. It expires after a period without
// authenticated requests.
type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

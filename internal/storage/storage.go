package storage

import "errors"

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotFound           = errors.New("record not found")
	ErrResetTokenNotFound = errors.New("reset token not found")
	ErrLimitReached       = errors.New("owner limit reached")
)

package service

import "errors"

var (
	ErrValidation         = errors.New("invalid request")
	ErrEmailTaken         = errors.New("email already registered")
	ErrDeviceTaken        = errors.New("app unique id already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotImplemented     = errors.New("social login is not implemented")
)

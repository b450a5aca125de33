package domain

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnauthenticated  = errors.New("authentication credentials were not provided")
	ErrNotFound         = errors.New("not found")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrDuplicateRequest = errors.New("duplicate request")
)

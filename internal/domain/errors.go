package domain

import "errors"

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectInactive = errors.New("project is not available for purchase")
	ErrInvalidPrice    = errors.New("invalid project price")
	ErrNotPurchased    = errors.New("project has not been purchased")
)

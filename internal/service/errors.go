package service

import "errors"

// Validation errors. Checked before any store write; a rejected request
// leaves no partial state.
var (
	ErrEmptyUserID      = errors.New("user_id must not be empty")
	ErrInvalidProductID = errors.New("product_id must be greater than 0")
	ErrInvalidQuantity  = errors.New("count must be greater than 0")
)

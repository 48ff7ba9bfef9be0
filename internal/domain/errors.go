package domain

import "errors"

// ErrValidation marks a value rejected before anything is sent.
var ErrValidation = errors.New("validation error")

package shortener

import (
	"errors"

	"github.com/sundayezeilo/shortlink/sluggen"
)

var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrInvalidSlug         = sluggen.ErrInvalidSlug
	ErrSlugConflict        = sluggen.ErrSlugConflict
	ErrGenerationExhausted = sluggen.ErrGenerationExhausted
	ErrDuplicateSlug       = errors.New("duplicate slug")
	ErrNotFound            = errors.New("link not found")
	ErrExpired             = errors.New("link expired")
	ErrForbidden           = errors.New("link belongs to another owner")
	ErrInvalidExpiry       = errors.New("invalid expiry")
)

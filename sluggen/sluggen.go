// Package sluggen produces short link slugs.
// Sources and Generators are safe for concurrent use.
package sluggen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

const (
	// Base62 is the default alphabet: ASCII letters and digits.
	Base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	// URLSafe adds the two unreserved URL symbols used by token-style slugs.
	URLSafe = Base62 + "-_"

	DefaultLength      = 6
	DefaultMaxAttempts = 10
	MinLength          = 3
	MaxLength          = 64
)

var (
	ErrInvalidSlug         = errors.New("invalid slug")
	ErrSlugConflict        = errors.New("slug already taken")
	ErrGenerationExhausted = errors.New("could not find a free slug")
)

// reserved slugs shadow service routes.
var reserved = map[string]bool{
	"api":    true,
	"health": true,
}

// Source draws random slugs.
type Source interface {
	Draw(length int) (string, error)
}

type randomSource struct {
	alphabet string
	// limit is the largest multiple of len(alphabet) that fits in a byte;
	// bytes at or above it are discarded so every symbol is equally likely.
	limit int
}

// NewRandom returns a Source backed by crypto/rand over alphabet.
// An empty alphabet selects Base62.
func NewRandom(alphabet string) (Source, error) {
	if alphabet == "" {
		alphabet = Base62
	}
	if len(alphabet) < 2 || len(alphabet) > 256 {
		return nil, fmt.Errorf("alphabet size must be between 2 and 256, got %d", len(alphabet))
	}
	return &randomSource{
		alphabet: alphabet,
		limit:    256 - 256%len(alphabet),
	}, nil
}

// NewBase62 returns a Source over Base62.
func NewBase62() Source {
	src, _ := NewRandom(Base62)
	return src
}

func (s *randomSource) Draw(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= s.limit {
				continue
			}
			out = append(out, s.alphabet[int(b)%len(s.alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Lookup reports whether a slug is already held by a stored link.
type Lookup interface {
	SlugTaken(ctx context.Context, slug string) (bool, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, slug string) (bool, error)

func (f LookupFunc) SlugTaken(ctx context.Context, slug string) (bool, error) {
	return f(ctx, slug)
}

// Config configures a Generator. Zero values select defaults.
type Config struct {
	Source      Source
	Length      int
	MaxAttempts int
}

// Generator resolves a unique slug against a Lookup. Its check is advisory:
// the store's atomic insert is what guarantees uniqueness.
type Generator struct {
	lookup      Lookup
	source      Source
	length      int
	maxAttempts int
}

func NewGenerator(lookup Lookup, cfg Config) *Generator {
	src := cfg.Source
	if src == nil {
		src = NewBase62()
	}

	length := cfg.Length
	if length < MinLength || length > MaxLength {
		length = DefaultLength
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	return &Generator{
		lookup:      lookup,
		source:      src,
		length:      length,
		maxAttempts: attempts,
	}
}

// Length returns the length of generated slugs.
func (g *Generator) Length() int { return g.length }

// Generate returns requested unchanged when it is valid and free, or draws a
// random free slug when requested is empty.
func (g *Generator) Generate(ctx context.Context, requested string) (string, error) {
	const op = "sluggen.Generate"

	if requested != "" {
		if err := Validate(requested); err != nil {
			return "", errx.E(op, errx.Invalid, err)
		}
		taken, err := g.lookup.SlugTaken(ctx, requested)
		if err != nil {
			return "", errx.Wrap(op, err)
		}
		if taken {
			return "", errx.E(op, errx.Conflict, fmt.Errorf("%w: %q", ErrSlugConflict, requested))
		}
		return requested, nil
	}

	for range g.maxAttempts {
		slug, err := g.source.Draw(g.length)
		if err != nil {
			return "", errx.E(op, errx.Internal, err)
		}
		taken, err := g.lookup.SlugTaken(ctx, slug)
		if err != nil {
			return "", errx.Wrap(op, err)
		}
		if !taken {
			return slug, nil
		}
	}

	return "", errx.E(op, errx.Internal,
		fmt.Errorf("%w after %d attempts of length %d", ErrGenerationExhausted, g.maxAttempts, g.length))
}

// Validate checks a caller-supplied slug.
func Validate(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) < MinLength {
		return fmt.Errorf("%w: slug too short (minimum %d characters)", ErrInvalidSlug, MinLength)
	}
	if len(slug) > MaxLength {
		return fmt.Errorf("%w: slug too long (maximum %d characters)", ErrInvalidSlug, MaxLength)
	}

	if strings.HasPrefix(slug, "-") || strings.HasPrefix(slug, "_") ||
		strings.HasSuffix(slug, "-") || strings.HasSuffix(slug, "_") {
		return fmt.Errorf("%w: slug cannot start or end with dash or underscore", ErrInvalidSlug)
	}

	for _, char := range slug {
		if !isValidSlugChar(char) {
			return fmt.Errorf("%w: only alphanumeric, dash, and underscore allowed", ErrInvalidSlug)
		}
	}

	if reserved[strings.ToLower(slug)] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSlug, slug)
	}
	return nil
}

func isValidSlugChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}

package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// MaxRequestBodySize caps JSON request bodies. Link payloads are a URL plus a
// few small fields, so 64KB is generous.
const MaxRequestBodySize = 64 << 10

var (
	ErrEmptyBody        = errors.New("request body is empty")
	ErrBodyTooLarge     = fmt.Errorf("request body too large (max %d bytes)", MaxRequestBodySize)
	ErrUnsupportedMedia = errors.New("content type must be application/json")
)

// DecodeJSON decodes a single JSON object from the request body into T.
// Unknown fields are rejected. A missing Content-Type is accepted; any other
// media type than application/json is not.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var v T

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return v, ErrUnsupportedMedia
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&v); err != nil {
		var zero T
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxErr):
			return zero, fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return zero, errors.New("malformed JSON: unexpected end of body")
		case errors.As(err, &typeErr):
			return zero, fmt.Errorf("invalid value for field %q", typeErr.Field)
		case errors.As(err, &maxBytesErr):
			return zero, ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			return zero, ErrEmptyBody
		default:
			return zero, fmt.Errorf("failed to decode JSON: %w", err)
		}
	}

	if dec.More() {
		var zero T
		return zero, errors.New("request body contains multiple JSON objects")
	}
	return v, nil
}

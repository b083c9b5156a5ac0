package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidPageToken is returned when a page token cannot be decoded.
// Tokens are opaque to callers; anything not produced by ListCategories is
// rejected rather than silently treated as the first page.
var ErrInvalidPageToken = errors.New("invalid page token")

// EncodePageToken encodes the exclusive lower bound of the next category
// page. Implementations use the last returned category name as the bound,
// which keeps tokens stable across concurrent reads of reference data.
func EncodePageToken(lastName string) string {
	if lastName == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(lastName))
}

// DecodePageToken decodes a token produced by EncodePageToken. An empty
// token decodes to an empty bound, meaning the listing starts from the top.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrInvalidPageToken)
	}
	return string(raw), nil
}

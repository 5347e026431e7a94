// Package http provides the JSON API server and its handlers.
//
// This file holds the request side: body decoding, decimal input, path
// and query identifiers, caller identity and expected versions.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"shoplist/internal/core"
)

const maxBodyBytes = 1 << 20

// UserIDHeader names the caller on every list and item route.
const UserIDHeader = "X-User-ID"

// jsonAmount holds a monetary or quantity input exactly as sent. Both
// "12.50" and 12.50 are accepted; numbers never pass through float64.
type jsonAmount string

func (a *jsonAmount) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*a = jsonAmount(t)
	case json.Number:
		*a = jsonAmount(t.String())
	default:
		return errors.New("must be a decimal string or number")
	}
	return nil
}

// parseAmount converts an optional input to a decimal attributed to field.
func parseAmount(field string, a *jsonAmount) (*decimal.Decimal, error) {
	if a == nil {
		return nil, nil
	}
	d, err := core.ParseField(field, string(*a))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// amountOr is parseAmount with a default for missing input.
func amountOr(field string, a *jsonAmount, def decimal.Decimal) (decimal.Decimal, error) {
	d, err := parseAmount(field, a)
	if err != nil {
		return decimal.Zero, err
	}
	if d == nil {
		return def, nil
	}
	return *d, nil
}

// decodeJSON reads a single JSON object from the body into dst. Unknown
// fields and trailing data are rejected as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return core.Invalid("body", "is required")
		case errors.As(err, &maxErr):
			return core.Invalid("body", "too large")
		default:
			return core.Invalid("body", "malformed JSON: "+err.Error())
		}
	}
	if dec.More() {
		return core.Invalid("body", "must contain a single JSON object")
	}
	return nil
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	return positiveID(name, r.PathValue(name))
}

func positiveID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid(field, "must be a positive integer")
	}
	return id, nil
}

// callerID reads the X-User-ID header. Anything but a positive integer is
// an unauthenticated request.
func callerID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if raw == "" {
		return 0, fmt.Errorf("missing %s header: %w", UserIDHeader, core.ErrUnauthenticated)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("malformed %s header: %w", UserIDHeader, core.ErrUnauthenticated)
	}
	return id, nil
}

// expectedVersion resolves the caller's expected version. A version in the
// body wins over If-Match, which wins over the version query parameter.
// It returns nil when the caller did not ask for a check.
func expectedVersion(r *http.Request, body *int64) (*int64, error) {
	if body != nil {
		if *body <= 0 {
			return nil, core.Invalid("version", "must be a positive integer")
		}
		return body, nil
	}

	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	field := "If-Match"
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("version"))
		field = "version"
	}
	if raw == "" || raw == "*" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)

	v, err := positiveID(field, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AuthError indicates that the backend rejected the API token.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "auth error: " + e.Message
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError is returned for non-2xx responses other than 401.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Detail)
}

// errorResponse covers the error shapes the backend emits.
type errorResponse struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func newStatusError(method, path string, status int, body []byte) *StatusError {
	e := &StatusError{Method: method, Path: path, StatusCode: status}

	var resp errorResponse
	if json.Unmarshal(body, &resp) == nil {
		var detail string
		if json.Unmarshal(resp.Detail, &detail) == nil && detail != "" {
			e.Detail = detail
			return e
		}
		if resp.Message != "" {
			e.Detail = resp.Message
			return e
		}
		if resp.Error != "" {
			e.Detail = resp.Error
			return e
		}
	}

	e.Detail = strings.TrimSpace(string(body))
	if len(e.Detail) > 200 {
		e.Detail = e.Detail[:200]
	}
	return e
}

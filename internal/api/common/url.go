// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GetAndValidateURLParam extracts, decodes, and validates a URL parameter from the request.
// Returns the decoded value or an error if invalid.
// Validation rules:
// - Must not be empty after trimming whitespace
// - Must not contain any whitespace characters
func GetAndValidateURLParam(r *http.Request, paramName string) (string, error) {
	return decodeParam(chi.URLParam(r, paramName), paramName)
}

// GetAndValidateWildcard is GetAndValidateURLParam for the trailing "*" of a
// route, whose value may contain "/". label names the value in errors.
func GetAndValidateWildcard(r *http.Request, label string) (string, error) {
	return decodeParam(chi.URLParam(r, "*"), label)
}

func decodeParam(encodedValue, label string) (string, error) {
	decoded, err := url.PathUnescape(encodedValue)
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", label)
	}

	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%s cannot be empty", label)
	}

	if strings.ContainsAny(decoded, " \t\n\r") {
		return "", fmt.Errorf("%s cannot contain whitespace", label)
	}

	return decoded, nil
}

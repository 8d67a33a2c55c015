package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const invalidKeyMessage = "API key not valid"

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Status     string // e.g. INVALID_ARGUMENT, RESOURCE_EXHAUSTED
	Reason     string // e.g. API_KEY_INVALID
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini API error %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini API error %d: %s", e.StatusCode, e.Message)
}

func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if gjson.ValidBytes(body) {
		apiErr.Status = gjson.GetBytes(body, "error.status").String()
		apiErr.Message = gjson.GetBytes(body, "error.message").String()
		for _, r := range gjson.GetBytes(body, "error.details.#.reason").Array() {
			if r.String() != "" {
				apiErr.Reason = r.String()
				break
			}
		}
	}
	if apiErr.Message == "" {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512] + "...(truncated)"
		}
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		apiErr.Message = msg
	}
	return apiErr
}

// IsCredentialError reports whether err means the API key is invalid or its
// quota is exhausted. Such errors repeat for every request until an operator acts.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Reason == "API_KEY_INVALID",
			apiErr.Status == "RESOURCE_EXHAUSTED",
			apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		}
	}
	return strings.Contains(err.Error(), invalidKeyMessage)
}

// IsQuotaError reports whether err is a quota or rate-limit refusal rather
// than a rejected key.
func IsQuotaError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == "RESOURCE_EXHAUSTED" || apiErr.StatusCode == http.StatusTooManyRequests
}

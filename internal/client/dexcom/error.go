package dexcom

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	go_json "github.com/goccy/go-json"
)

// ErrMalformedResponse wraps payloads that do not match the expected
// schema. The poll cycle logs these and skips the cycle.
var ErrMalformedResponse = errors.New("malformed provider response")

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dexcom api: %d %s", e.StatusCode, e.Message)
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		}
	}

	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Fault   *struct {
			FaultString string `json:"faultstring"`
		} `json:"fault"`
	}

	if err := go_json.Unmarshal(body, &errResp); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	msg := errResp.Message
	if msg == "" {
		msg = errResp.Error
	}
	if msg == "" && errResp.Fault != nil {
		msg = errResp.Fault.FaultString
	}
	if msg == "" {
		msg = resp.Status
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

// IsUnauthorized reports a provider-side authorization failure: the access
// token was rejected despite the staleness check (clock skew or a lost
// rotation race). The caller forces one refresh and retries once.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// IsUnavailable reports a transient provider failure: network error or 5xx.
// The cycle is skipped and the next scheduled tick retries naturally.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	// Non-API errors from the transport are network failures.
	return err != nil && !errors.Is(err, ErrMalformedResponse)
}

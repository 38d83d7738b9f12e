package venue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes the trading loop reacts to.
const (
	CodeTradingDisabled     = "TRADING_DISABLED"
	CodeMaxPositionExceeded = "MAXIMUM_POSITION_SIZE_EXCEEDED"
	CodeRateLimited         = "TOO_MANY_REQUESTS"
)

// APIError is a non-2xx venue response.
type APIError struct {
	Status  int             `json:"-"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("venue: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("venue: http %d: %s: %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == 429 || e.Code == CodeRateLimited
}

// ErrorCode returns the venue error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func IsTradingDisabled(err error) bool {
	return ErrorCode(err) == CodeTradingDisabled
}

func IsMaxPositionExceeded(err error) bool {
	return ErrorCode(err) == CodeMaxPositionExceeded
}

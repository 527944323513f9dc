package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

var ErrTooLarge = errors.New("response body too large")

// NetworkError reports a transport failure or a non-2xx status from any
// endpoint. URL never carries a query string, so tokens cannot leak into logs.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s returned status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is the platform's error envelope. It arrives inside a 2xx
// response and is fatal for the run, rate limits included.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// UnmarshalJSON also accepts the bare string form used by upload servers,
// e.g. {"error": "ERR_UPLOAD_BAD_IMAGE_SIZE: ..."}.
func (e *APIError) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		*e = APIError{Message: msg}
		return nil
	}
	type plain APIError
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = APIError(p)
	return nil
}

// MalformedResponseError reports a body that could not be decoded or lacks
// a required field.
type MalformedResponseError struct {
	Op    string
	Field string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: malformed response field %q: %v", e.Op, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: response is missing field %q", e.Op, e.Field)
	default:
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

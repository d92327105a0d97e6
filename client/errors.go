package client

import "fmt"

// API error type. implements the Stringer interface.
type ErrType int

const (
	RequestErr ErrType = iota + 1
	ResponseErr
)

func (t ErrType) String() string {
	switch t {
	case RequestErr:
		return "req"
	case ResponseErr:
		return "resp"
	}
	return ""
}

// API error. implements the error interface.
type APIError struct {
	Type         ErrType
	StatusCode   int
	Reason       string
	ConnectionID string
	RequestID    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("t:%s; s:%d; m:%s; c:%s; r:%s", e.Type, e.StatusCode, e.Reason, e.ConnectionID, e.RequestID)
}

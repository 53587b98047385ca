// Package channel implements the method channel: line-delimited JSON requests
// carrying a channel name, a method and an argument value, answered by a result,
// an error or a not-implemented marker.
package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotImplemented is returned by a Handler for unknown channels or methods.
var ErrNotImplemented = errors.New("not implemented")

// Error codes carried in error responses.
const (
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal"
	CodeError      = "error"
)

// Request is one inbound method call.
type Request struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Channel   string          `json:"channel"`
	Method    string          `json:"method"`
	Arguments any             `json:"arguments,omitempty"`
}

// Error is the payload of a failed call.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response answers a Request. Exactly one of Result, Error or NotImplemented applies.
type Response struct {
	ID             json.RawMessage
	Result         any
	Error          *Error
	NotImplemented bool
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.NotImplemented:
		return json.Marshal(struct {
			ID             json.RawMessage `json:"id,omitempty"`
			NotImplemented bool            `json:"notImplemented"`
		}{r.ID, true})
	case r.Error != nil:
		return json.Marshal(struct {
			ID    json.RawMessage `json:"id,omitempty"`
			Error *Error          `json:"error"`
		}{r.ID, r.Error})
	default:
		return json.Marshal(struct {
			ID     json.RawMessage `json:"id,omitempty"`
			Result any             `json:"result"`
		}{r.ID, r.Result})
	}
}

// Event is an unsolicited notification sent to the host.
type Event struct {
	Name      string `json:"event"`
	Arguments any    `json:"arguments,omitempty"`
}

// DecodeRequest parses one request line. Numbers are kept as json.Number.
func DecodeRequest(line []byte) (*Request, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var req Request
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("malformed request: %w", err)
	}
	if dec.More() {
		return nil, errors.New("malformed request: trailing data")
	}
	if req.Method == "" {
		return &req, errors.New("malformed request: method is required")
	}
	return &req, nil
}

// DecodeArguments parses a standalone JSON argument value the same way DecodeRequest does.
func DecodeArguments(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}

// ResponseFor builds the response for a handler outcome.
func ResponseFor(id json.RawMessage, result any, err error) Response {
	switch {
	case err == nil:
		return Response{ID: id, Result: result}
	case errors.Is(err, ErrNotImplemented):
		return Response{ID: id, NotImplemented: true}
	default:
		return Response{ID: id, Error: &Error{Code: CodeError, Message: err.Error()}}
	}
}

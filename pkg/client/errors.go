package client

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransportError is a network-level failure reaching the upstream API. It is
// never cached and propagates to the caller as-is.
type TransportError struct {
	Err       error
	RequestID string
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return withRequestID(fmt.Sprintf("storefront transport error: %v", e.Err), e.RequestID)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-2xx upstream response. The body is best-effort parsed
// into messages, falling back to the raw text. Never cached.
type HTTPError struct {
	StatusCode int
	Messages   []string
	RawBody    []byte
	RequestID  string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return withRequestID(
		fmt.Sprintf("storefront upstream error (status %d): %s", e.StatusCode, strings.Join(e.Messages, "; ")),
		e.RequestID,
	)
}

// GraphQLError is a 2xx upstream response whose body carries an errors list,
// or whose body could not be decoded at all. Raised to the caller even
// though the HTTP layer succeeded; never cached.
type GraphQLError struct {
	Messages  []string
	RequestID string
}

// Error implements the error interface.
func (e *GraphQLError) Error() string {
	return withRequestID(
		fmt.Sprintf("storefront graphql error: %s", strings.Join(e.Messages, "; ")),
		e.RequestID,
	)
}

// withRequestID appends the upstream correlation id to a message when one is
// present, to aid cross-system tracing.
func withRequestID(msg, requestID string) string {
	if requestID == "" {
		return msg
	}
	return fmt.Sprintf("%s (request id %s)", msg, requestID)
}

// envelope is the upstream GraphQL response shape.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []upstreamError `json:"errors"`
}

type upstreamError struct {
	Message string `json:"message"`
}

// errorMessages extracts the message list from an errors payload,
// falling back to a single message wrapping the raw text.
func errorMessages(body []byte) []string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Errors) > 0 {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, e.Message)
		}
		return msgs
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = "no response body"
	}
	return []string{text}
}

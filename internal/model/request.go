package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Method is an HTTP method supported by saved requests
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodPatch  Method = "PATCH"
)

// Valid reports whether m is one of the supported methods
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
		return true
	}
	return false
}

// AllowsBody reports whether a body is attached when sending with this method
func (m Method) AllowsBody() bool {
	return m == MethodPost || m == MethodPut || m == MethodPatch
}

// ParseMethod normalizes and validates a method name
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unsupported method: %s", s)
	}
	return m, nil
}

// NewID returns a fresh identity for any model entity
func NewID() string {
	return uuid.New().String()
}

// KeyValue is a single header or query parameter entry
type KeyValue struct {
	ID      string `json:"id" yaml:"id"`
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// NewKeyValue creates an entry with a fresh identity
func NewKeyValue(key, value string, enabled bool) KeyValue {
	return KeyValue{
		ID:      NewID(),
		Key:     key,
		Value:   value,
		Enabled: enabled,
	}
}

// Active reports whether the entry takes part in building the outgoing request
func (kv KeyValue) Active() bool {
	return kv.Enabled && kv.Key != ""
}

// Request represents a saved HTTP request
type Request struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Method    Method     `json:"method" yaml:"method"`
	URL       string     `json:"url" yaml:"url"`
	Headers   []KeyValue `json:"headers" yaml:"headers"`
	Params    []KeyValue `json:"params" yaml:"params"`
	Body      string     `json:"body" yaml:"body,omitempty"`
	CreatedAt time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" yaml:"updatedAt"`
}

// NewRequest creates an empty request with a fresh identity
func NewRequest(name string, method Method, url string) Request {
	now := time.Now().UTC()
	return Request{
		ID:        NewID(),
		Name:      name,
		Method:    method,
		URL:       url,
		Headers:   []KeyValue{},
		Params:    []KeyValue{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares no slices with r
func (r Request) Clone() Request {
	out := r
	out.Headers = append([]KeyValue(nil), r.Headers...)
	out.Params = append([]KeyValue(nil), r.Params...)
	return out
}

// ActiveHeaders returns the headers that will be sent
func (r Request) ActiveHeaders() []KeyValue {
	return activeOnly(r.Headers)
}

// ActiveParams returns the query parameters that will be sent
func (r Request) ActiveParams() []KeyValue {
	return activeOnly(r.Params)
}

// Label returns the name if set, otherwise "METHOD url"
func (r Request) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%s %s", r.Method, r.URL)
}

func activeOnly(entries []KeyValue) []KeyValue {
	out := make([]KeyValue, 0, len(entries))
	for _, kv := range entries {
		if kv.Active() {
			out = append(out, kv)
		}
	}
	return out
}

// Response represents an HTTP response
type Response struct {
	Status     int               `json:"status" yaml:"status"`
	StatusText string            `json:"statusText" yaml:"statusText"`
	Headers    map[string]string `json:"headers" yaml:"headers"`
	Body       string            `json:"body" yaml:"body"`
	Time       int64             `json:"time" yaml:"time"` // milliseconds
}

// TransportErrorStatusText is paired with status 0 to mark a transport failure
const TransportErrorStatusText = "Error"

// NewTransportErrorResponse encodes a transport failure as a status 0 response
func NewTransportErrorResponse(err error, elapsed time.Duration) *Response {
	msg := "unknown error occurred"
	if err != nil {
		msg = err.Error()
	}
	return &Response{
		Status:     0,
		StatusText: TransportErrorStatusText,
		Headers:    map[string]string{},
		Body:       msg,
		Time:       elapsed.Milliseconds(),
	}
}

// TransportFailure reports whether the response encodes a transport failure
// rather than a real HTTP status
func (r *Response) TransportFailure() bool {
	return r != nil && r.Status == 0
}

// Successful reports whether the status is in the 200-399 range
func (r *Response) Successful() bool {
	return r != nil && r.Status >= 200 && r.Status < 400
}

// HistoryEntry represents a sent request stored in history
type HistoryEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Method    Method            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
	Response  *Response         `json:"response,omitempty"`
}

// History represents the request history storage
type History struct {
	Entries []HistoryEntry `json:"requests"`
}

// Aliases represents all URL aliases storage
type Aliases struct {
	Aliases map[string]string `json:"aliases"` // name -> base URL
}

// Package history records dispatched requests with credentials redacted.
package history

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/engine"
	"github.com/pyhu26/post-woman/internal/model"
)

// Redacted replaces the value of a sensitive header
const Redacted = "[REDACTED]"

// sensitiveHeaders is a list of headers that are redacted before storing
var sensitiveHeaders = map[string]bool{
	// Standard authentication headers
	"authorization":       true,
	"proxy-authorization": true,
	"www-authenticate":    true,

	// Session and token headers
	"cookie":       true,
	"set-cookie":   true,
	"x-api-key":    true,
	"api-key":      true,
	"x-auth-token": true,
	"x-csrf-token": true,
	"x-xsrf-token": true,

	// AWS credentials
	"x-amz-security-token": true,
	"x-amz-credential":     true,
	"x-amz-signature":      true,

	// GCP credentials
	"x-goog-authenticated-user-email": true,
	"x-goog-authenticated-user-id":    true,
	"x-goog-iap-jwt-assertion":        true,

	// Azure credentials
	"x-ms-client-principal":    true,
	"x-ms-client-principal-id": true,
	"x-ms-token-aad-id-token":  true,

	// Other common auth headers
	"x-access-token":  true,
	"x-refresh-token": true,
	"x-session-token": true,
	"x-secret-key":    true,
	"x-private-key":   true,
}

// sensitiveBodyPatterns suggest credentials in a request body
var sensitiveBodyPatterns = []string{
	"password", "passwd", "pwd",
	"secret", "token", "api_key", "apikey",
	"private_key", "privatekey",
	"credit_card", "creditcard", "card_number",
	"ssn", "social_security",
	"access_token", "refresh_token",
	"client_secret", "auth",
}

// IsSensitiveHeader reports whether a header carries credentials
func IsSensitiveHeader(name string) bool {
	return sensitiveHeaders[strings.ToLower(name)]
}

// RedactHeaders returns a copy of headers with sensitive values redacted
func RedactHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	filtered := make(map[string]string, len(headers))
	for k, v := range headers {
		if IsSensitiveHeader(k) {
			filtered[k] = Redacted
		} else {
			filtered[k] = v
		}
	}
	return filtered
}

// RedactRequest returns a copy of req with sensitive header values redacted
func RedactRequest(req model.Request) model.Request {
	out := req.Clone()
	for i, h := range out.Headers {
		if IsSensitiveHeader(h.Key) {
			out.Headers[i].Value = Redacted
		}
	}
	return out
}

// SensitiveBody reports whether body looks like it holds credentials
func SensitiveBody(body string) bool {
	if body == "" {
		return false
	}
	lower := strings.ToLower(body)
	for _, pattern := range sensitiveBodyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Store is the part of storage the recorder writes to
type Store interface {
	AddToHistory(entry model.HistoryEntry) error
}

// NewEntry builds a redacted history entry for a sent request
func NewEntry(method model.Method, url string, headers map[string]string, body string, resp *model.Response) model.HistoryEntry {
	entry := model.HistoryEntry{
		ID:        model.NewID()[:8],
		Timestamp: time.Now().UTC(),
		Method:    method,
		URL:       url,
		Headers:   RedactHeaders(headers),
		Body:      body,
	}
	if resp != nil {
		entry.Response = &model.Response{
			Status:     resp.Status,
			StatusText: resp.StatusText,
			Headers:    RedactHeaders(resp.Headers),
			Body:       resp.Body,
			Time:       resp.Time,
		}
	}
	return entry
}

// Recorder wraps a dispatcher and stores every exchange in history
type Recorder struct {
	next  engine.Dispatcher
	store Store
	log   *zap.Logger
}

// NewRecorder returns a dispatcher that records what next sends
func NewRecorder(next engine.Dispatcher, store Store, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{next: next, store: store, log: log}
}

// Send dispatches req and records it. Storage failures are logged and
// never change the dispatch outcome.
func (r *Recorder) Send(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := r.next.Send(ctx, req)

	headers := make(map[string]string, len(req.Headers))
	for _, h := range req.ActiveHeaders() {
		headers[h.Key] = h.Value
	}
	body := ""
	if req.Method.AllowsBody() {
		body = req.Body
	}
	entry := NewEntry(req.Method, req.URL, headers, body, resp)

	if storeErr := r.store.AddToHistory(entry); storeErr != nil {
		r.log.Warn("Failed to save request to history",
			zap.String("url", req.URL),
			zap.Error(storeErr),
		)
	}
	return resp, err
}

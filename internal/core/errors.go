package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// StatusError is the normalized form of every failure surfaced by the
// cluster client. The rest of the codebase only ever sees this type;
// Classify is the single place that understands the raw shapes the
// underlying client can produce.
type StatusError struct {
	// Code is an HTTP-like status code. Always set; unknown shapes
	// normalize to 500.
	Code int32
	// Reason is the machine-readable reason from the API status, if
	// the raw error carried one (e.g. "NotFound", "Conflict").
	Reason string
	// Message is a human-readable description.
	Message string
	// Details carries optional key-value context (resource name,
	// group, kind) extracted from a structured API status.
	Details map[string]string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Code, e.Reason)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// statusCoder is the legacy shape: an error that only carries a bare
// HTTP status code from a nested response.
type statusCoder interface {
	StatusCode() int
}

// reasonToCode maps machine-readable status reasons to HTTP codes for
// raw payloads that carry a reason but no numeric code.
var reasonToCode = map[metav1.StatusReason]int32{
	metav1.StatusReasonUnauthorized:       http.StatusUnauthorized,
	metav1.StatusReasonForbidden:          http.StatusForbidden,
	metav1.StatusReasonNotFound:           http.StatusNotFound,
	metav1.StatusReasonAlreadyExists:      http.StatusConflict,
	metav1.StatusReasonConflict:           http.StatusConflict,
	metav1.StatusReasonGone:               http.StatusGone,
	metav1.StatusReasonBadRequest:         http.StatusBadRequest,
	metav1.StatusReasonInvalid:            http.StatusUnprocessableEntity,
	metav1.StatusReasonTimeout:            http.StatusGatewayTimeout,
	metav1.StatusReasonServerTimeout:      http.StatusGatewayTimeout,
	metav1.StatusReasonTooManyRequests:    http.StatusTooManyRequests,
	metav1.StatusReasonServiceUnavailable: http.StatusServiceUnavailable,
	metav1.StatusReasonInternalError:      http.StatusInternalServerError,
}

// Classify normalizes a raw client error into a StatusError. It
// recognizes three independent encodings: a pre-parsed API status
// (optionally with a raw JSON body as its message), a status payload
// embedded as a JSON blob inside free-form message text, and a legacy
// shape that only exposes a nested response status code. Classifying
// an already-normalized error returns the identical instance. Unknown
// shapes map to code 500. Classify never panics and never fails; a
// body that cannot be parsed degrades to a best-effort plain message.
func Classify(err error) *StatusError {
	if err == nil {
		return nil
	}

	// Idempotent: an already-normalized error passes through as-is.
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}

	// Pre-parsed API status (the common client shape).
	var apiStatus apierrors.APIStatus
	if errors.As(err, &apiStatus) {
		return fromStatus(apiStatus.Status())
	}

	// Legacy shape: numeric code in a nested response, message only
	// in the error text.
	var coder statusCoder
	if errors.As(err, &coder) {
		code := int32(coder.StatusCode())
		if code == 0 {
			code = http.StatusInternalServerError
		}
		return &StatusError{Code: code, Message: err.Error()}
	}

	// Status payload embedded as a (possibly escaped) JSON blob in
	// free-form, multi-line message text.
	if st, ok := embeddedStatus(err.Error()); ok {
		return st
	}

	return &StatusError{Code: http.StatusInternalServerError, Message: err.Error()}
}

func fromStatus(st metav1.Status) *StatusError {
	code := st.Code
	if code == 0 {
		if mapped, ok := reasonToCode[st.Reason]; ok {
			code = mapped
		} else {
			code = http.StatusInternalServerError
		}
	}

	msg := st.Message
	// Some transports stuff the raw JSON body into the message field.
	// Recover the structured payload when that happens; keep the text
	// as-is when it does not parse.
	if strings.HasPrefix(strings.TrimSpace(msg), "{") {
		if inner, ok := embeddedStatus(msg); ok {
			if st.Reason == "" {
				st.Reason = metav1.StatusReason(inner.Reason)
			}
			msg = inner.Message
		}
	}
	if msg == "" {
		msg = string(st.Reason)
	}

	out := &StatusError{
		Code:    code,
		Reason:  string(st.Reason),
		Message: msg,
	}
	if d := st.Details; d != nil {
		out.Details = map[string]string{}
		if d.Name != "" {
			out.Details["name"] = d.Name
		}
		if d.Group != "" {
			out.Details["group"] = d.Group
		}
		if d.Kind != "" {
			out.Details["kind"] = d.Kind
		}
	}
	return out
}

// embeddedStatus extracts a status payload embedded inside free-form
// text. The payload may appear escaped (\" instead of ") if it was
// serialized into another message. Returns false when no parseable
// payload is found, so callers fall back to the plain text.
func embeddedStatus(text string) (*StatusError, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	blob := text[start : end+1]

	var st metav1.Status
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		// Escaped blob: the JSON was itself serialized into a string.
		unescaped := strings.ReplaceAll(blob, `\"`, `"`)
		if err := json.Unmarshal([]byte(unescaped), &st); err != nil {
			return nil, false
		}
	}
	if st.Code == 0 && st.Reason == "" && st.Kind != "Status" {
		return nil, false
	}
	out := fromStatus(st)
	if out.Message == "" {
		out.Message = firstLine(text)
	}
	return out, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// IsNotFound reports whether the error normalizes to HTTP 404.
func IsNotFound(err error) bool { return codeOf(err) == http.StatusNotFound }

// IsConflict reports whether the error normalizes to HTTP 409.
func IsConflict(err error) bool { return codeOf(err) == http.StatusConflict }

// IsUnauthorized reports whether the error normalizes to HTTP 401.
func IsUnauthorized(err error) bool { return codeOf(err) == http.StatusUnauthorized }

// IsForbidden reports whether the error normalizes to HTTP 403.
func IsForbidden(err error) bool { return codeOf(err) == http.StatusForbidden }

func codeOf(err error) int32 {
	se := Classify(err)
	if se == nil {
		return 0
	}
	return se.Code
}

// badRequest builds the synchronous validation error used for
// malformed call parameters. These never travel through a stream
// channel; they are returned directly from the call site.
func badRequest(field, msg string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadRequest,
		Reason:  string(metav1.StatusReasonBadRequest),
		Message: fmt.Sprintf("invalid %s: %s", field, msg),
	}
}

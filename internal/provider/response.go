package provider

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// StatusSuccess is the status value the service returns for an accepted
// message.
const StatusSuccess = 1

// RawResponse is what a single attempt produced on the wire. StatusCode is 0
// when no HTTP response was received; Err then holds the transport error.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error
}

// Successful reports an HTTP-level success, regardless of the body.
func (r RawResponse) Successful() bool {
	return r.Err == nil && r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusBadRequest
}

// SendResponse is the classified result of a complete send sequence.
type SendResponse struct {
	status   *int
	id       string
	errors   []string
	raw      RawResponse
	attempts int
}

// NewSendResponse classifies a raw response. A body that is not a JSON object
// carrying an integer status leaves status and id absent.
func NewSendResponse(raw RawResponse) *SendResponse {
	resp := &SendResponse{
		errors:   []string{},
		raw:      raw,
		attempts: 1,
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw.Body, &fields); err != nil {
		return resp
	}

	var status int
	rawStatus, ok := fields["status"]
	if !ok || json.Unmarshal(rawStatus, &status) != nil {
		return resp
	}

	resp.status = &status
	resp.id = decodeText(fields["request"])
	resp.errors = decodeErrors(fields["errors"])
	return resp
}

// decodeText reads a JSON string, keeping other scalars in their literal
// form. Null, objects and arrays yield "".
func decodeText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	switch trimmed[0] {
	case 'n', '{', '[':
		return ""
	default:
		return string(trimmed)
	}
}

// decodeErrors reads the errors array. Entries that are not strings are kept
// as compact JSON rather than failing the whole response.
func decodeErrors(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}

		var compact bytes.Buffer
		if err := json.Compact(&compact, item); err != nil {
			continue
		}
		out = append(out, compact.String())
	}
	return out
}

// OK reports whether the service accepted the message.
func (r *SendResponse) OK() bool {
	return r != nil && r.status != nil && *r.status == StatusSuccess
}

// Status returns the service status and whether one was received.
func (r *SendResponse) Status() (int, bool) {
	if r == nil || r.status == nil {
		return 0, false
	}
	return *r.status, true
}

// ID returns the service-assigned request identifier, if any.
func (r *SendResponse) ID() string {
	if r == nil {
		return ""
	}
	return r.id
}

func (r *SendResponse) Errors() []string {
	if r == nil {
		return []string{}
	}
	out := make([]string, len(r.errors))
	copy(out, r.errors)
	return out
}

// Raw returns the final attempt's wire response.
func (r *SendResponse) Raw() RawResponse {
	if r == nil {
		return RawResponse{}
	}
	return r.raw
}

// Attempts is the number of HTTP round-trips made.
func (r *SendResponse) Attempts() int {
	if r == nil {
		return 0
	}
	return r.attempts
}

// RaiseForStatus returns nil on success, *ServerSendError when no status was
// obtained and *ClientSendError when the service rejected the request.
func (r *SendResponse) RaiseForStatus() error {
	status, ok := r.Status()
	if !ok {
		return &ServerSendError{Response: r.Raw()}
	}
	if status != StatusSuccess {
		return &ClientSendError{Status: status, Errors: r.Errors()}
	}
	return nil
}

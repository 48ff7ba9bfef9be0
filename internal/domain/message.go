package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Form field names understood by the messages endpoint.
const (
	FieldMessage   = "message"
	FieldTitle     = "title"
	FieldTimestamp = "timestamp"
	FieldURL       = "url"
	FieldURLTitle  = "url_title"
	FieldPriority  = "priority"
)

// Message is an immutable Pushover notification. Build it with NewMessage.
type Message struct {
	body      string
	title     string
	timestamp time.Time
	url       string
	urlTitle  string
	priority  Priority
}

// MessageOption sets an optional Message attribute.
type MessageOption func(*Message)

// WithTitle overrides the heading, which otherwise is the sending
// application's name.
func WithTitle(title string) MessageOption {
	return func(m *Message) { m.title = title }
}

// WithTimestamp sets the time shown for the message. Without it the service
// uses its receipt time.
func WithTimestamp(ts time.Time) MessageOption {
	return func(m *Message) { m.timestamp = ts }
}

func WithURL(u string) MessageOption {
	return func(m *Message) { m.url = u }
}

func WithURLTitle(title string) MessageOption {
	return func(m *Message) { m.urlTitle = title }
}

func WithPriority(p Priority) MessageOption {
	return func(m *Message) { m.priority = p }
}

// NewMessage builds a message. A URL title without a URL is rejected with
// ErrValidation; everything else is left for the service to judge.
func NewMessage(body string, opts ...MessageOption) (*Message, error) {
	m := &Message{
		body:     body,
		priority: PriorityNormal,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.urlTitle != "" && m.url == "" {
		return nil, fmt.Errorf("%w: url title requires a url", ErrValidation)
	}

	return m, nil
}

func (m *Message) Body() string         { return m.body }
func (m *Message) Title() string        { return m.title }
func (m *Message) Timestamp() time.Time { return m.timestamp }
func (m *Message) URL() string          { return m.url }
func (m *Message) URLTitle() string     { return m.urlTitle }
func (m *Message) Priority() Priority   { return m.priority }

// HasTimestamp reports whether an explicit timestamp was given.
func (m *Message) HasTimestamp() bool { return !m.timestamp.IsZero() }

// Form returns the unsigned request payload. Unset optional fields are left
// out so the service applies its own defaults.
func (m *Message) Form() url.Values {
	form := url.Values{}
	form.Set(FieldMessage, m.body)
	if m.title != "" {
		form.Set(FieldTitle, m.title)
	}
	if m.HasTimestamp() {
		form.Set(FieldTimestamp, strconv.FormatInt(unixSeconds(m.timestamp), 10))
	}
	if m.url != "" {
		form.Set(FieldURL, m.url)
	}
	if m.urlTitle != "" {
		form.Set(FieldURLTitle, m.urlTitle)
	}
	form.Set(FieldPriority, strconv.Itoa(int(m.priority)))
	return form
}

// unixSeconds truncates toward zero, so fractional pre-epoch times round up.
func unixSeconds(t time.Time) int64 {
	secs := t.Unix()
	if secs < 0 && t.Nanosecond() > 0 {
		secs++
	}
	return secs
}

func (m *Message) String() string {
	return fmt.Sprintf("Message(%s)", m.body)
}

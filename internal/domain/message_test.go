package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewMessageURLTitleRequiresURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		url      string
		urlTitle string
		wantErr  bool
	}{
		{name: "neither set"},
		{name: "url only", url: "https://example.com"},
		{name: "url and title", url: "https://example.com", urlTitle: "Example"},
		{name: "title without url", urlTitle: "Example", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := NewMessage("hello", WithURL(tt.url), WithURLTitle(tt.urlTitle))
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("NewMessage() error = %v, want ErrValidation", err)
				}
				if msg != nil {
					t.Fatal("expected nil message on validation failure")
				}
				return
			}

			if err != nil {
				t.Fatalf("NewMessage() unexpected error = %v", err)
			}
			if msg.URL() != tt.url || msg.URLTitle() != tt.urlTitle {
				t.Fatalf("url = %q/%q, want %q/%q", msg.URL(), msg.URLTitle(), tt.url, tt.urlTitle)
			}
		})
	}
}

func TestNewMessageDefaults(t *testing.T) {
	t.Parallel()

	msg, err := NewMessage("")
	if err != nil {
		t.Fatalf("NewMessage() unexpected error = %v", err)
	}
	if msg.Priority() != PriorityNormal {
		t.Fatalf("Priority() = %v, want %v", msg.Priority(), PriorityNormal)
	}
	if msg.HasTimestamp() {
		t.Fatal("HasTimestamp() = true, want false")
	}
	if got := msg.String(); got != "Message()" {
		t.Fatalf("String() = %q, want %q", got, "Message()")
	}
}

func TestMessageFormTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2017, time.March, 4, 12, 30, 15, 0, time.FixedZone("CET", 3600))
	msg, err := NewMessage("hello", WithTimestamp(ts))
	if err != nil {
		t.Fatalf("NewMessage() unexpected error = %v", err)
	}

	form := msg.Form()
	want := "1488627015"
	if got := form.Get(FieldTimestamp); got != want {
		t.Fatalf("timestamp = %q, want %q", got, want)
	}
}

func TestMessageFormTimestampTruncatesTowardZero(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ts   time.Time
		want string
	}{
		{name: "after epoch", ts: time.Date(2020, 1, 1, 0, 0, 0, 900_000_000, time.UTC), want: "1577836800"},
		{name: "half second before epoch", ts: time.Date(1969, 12, 31, 23, 59, 59, 500_000_000, time.UTC), want: "0"},
		{name: "whole second before epoch", ts: time.Date(1969, 12, 31, 23, 59, 59, 0, time.UTC), want: "-1"},
		{name: "fraction before epoch", ts: time.Date(1969, 12, 31, 23, 59, 58, 250_000_000, time.UTC), want: "-1"},
		{name: "far past", ts: time.Date(1500, 6, 1, 0, 0, 0, 0, time.UTC), want: "-14818723200"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := NewMessage("hello", WithTimestamp(tt.ts))
			if err != nil {
				t.Fatalf("NewMessage() error = %v", err)
			}
			if got := msg.Form().Get(FieldTimestamp); got != tt.want {
				t.Fatalf("timestamp = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageFormFields(t *testing.T) {
	t.Parallel()

	msg, err := NewMessage("body",
		WithTitle("title"),
		WithURL("https://example.com"),
		WithURLTitle("Example"),
		WithPriority(PriorityLowest),
	)
	if err != nil {
		t.Fatalf("NewMessage() unexpected error = %v", err)
	}

	form := msg.Form()
	want := map[string]string{
		FieldMessage:  "body",
		FieldTitle:    "title",
		FieldURL:      "https://example.com",
		FieldURLTitle: "Example",
		FieldPriority: "-2",
	}
	if len(form) != len(want) {
		t.Fatalf("form has %d fields, want %d: %v", len(form), len(want), form)
	}
	for key, value := range want {
		if got := form.Get(key); got != value {
			t.Fatalf("form[%s] = %q, want %q", key, got, value)
		}
	}
}

func TestMessageFormOmitsUnsetFields(t *testing.T) {
	t.Parallel()

	msg, err := NewMessage("only body")
	if err != nil {
		t.Fatalf("NewMessage() unexpected error = %v", err)
	}

	form := msg.Form()
	for _, key := range []string{FieldTitle, FieldTimestamp, FieldURL, FieldURLTitle} {
		if _, ok := form[key]; ok {
			t.Fatalf("form unexpectedly contains %q", key)
		}
	}
	if got := form.Get(FieldPriority); got != "0" {
		t.Fatalf("priority = %q, want 0", got)
	}
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/pullover/internal/domain"
	"github.com/kursadbilgin/pullover/internal/observability"
	"github.com/kursadbilgin/pullover/internal/provider"
	"github.com/kursadbilgin/pullover/internal/ratelimit"
	"github.com/kursadbilgin/pullover/internal/transport"
	"go.uber.org/zap"
)

func TestMessageRelay_SendMessageSuccess(t *testing.T) {
	t.Parallel()

	sender := &stubSender{
		sendFn: func(ctx context.Context, msg *domain.Message, app domain.Application, user domain.User) *provider.SendResponse {
			if msg.Body() != "hello" {
				t.Errorf("Body() = %q, want hello", msg.Body())
			}
			if msg.Priority() != domain.PriorityHigh {
				t.Errorf("Priority() = %v, want high", msg.Priority())
			}
			wantTS := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
			if !msg.Timestamp().Equal(wantTS) {
				t.Errorf("Timestamp() = %v, want %v", msg.Timestamp(), wantTS)
			}
			if app.Token() != "app-token" {
				t.Errorf("app token = %q, want app-token", app.Token())
			}
			if user.Key() != "default-user" {
				t.Errorf("user key = %q, want default-user", user.Key())
			}
			if id, _ := observability.CorrelationIDFromContext(ctx); id != "req-abc" {
				t.Errorf("correlation id = %q, want req-abc", id)
			}
			return okResponse("svc-request-1")
		},
	}

	app := newMessageTestApp(t, sender)

	body := `{"message":"hello","priority":"high","timestamp":"2026-03-01T10:00:00Z"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/messages", body, map[string]string{
		fiber.HeaderXRequestID: "req-abc",
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, respBody)
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed.Status != 1 || parsed.Request != "svc-request-1" || parsed.Attempts != 1 {
		t.Fatalf("response = %+v", parsed)
	}
}

func TestMessageRelay_SendMessageUserOverrideAndIntegerPriority(t *testing.T) {
	t.Parallel()

	sender := &stubSender{
		sendFn: func(ctx context.Context, msg *domain.Message, app domain.Application, user domain.User) *provider.SendResponse {
			if user.Key() != "other-user" {
				t.Errorf("user key = %q, want other-user", user.Key())
			}
			if msg.Priority() != domain.PriorityLowest {
				t.Errorf("Priority() = %v, want lowest", msg.Priority())
			}
			return okResponse("r")
		},
	}

	app := newMessageTestApp(t, sender)
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/messages", `{"message":"hi","priority":-2,"user":"other-user"}`, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, respBody)
	}
}

func TestMessageRelay_SendMessageValidation(t *testing.T) {
	t.Parallel()

	sender := &stubSender{
		sendFn: func(ctx context.Context, msg *domain.Message, app domain.Application, user domain.User) *provider.SendResponse {
			t.Error("sender must not be called for invalid requests")
			return okResponse("")
		},
	}
	app := newMessageTestApp(t, sender)

	testCases := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"message":`},
		{name: "missing message", body: `{"title":"t"}`},
		{name: "url title without url", body: `{"message":"m","urlTitle":"Example"}`},
		{name: "emergency priority", body: `{"message":"m","priority":2}`},
		{name: "unknown priority name", body: `{"message":"m","priority":"urgent"}`},
		{name: "bad timestamp", body: `{"message":"m","timestamp":"yesterday"}`},
	}

	for _, tc := range testCases {
		resp, respBody := performRequest(t, app, http.MethodPost, "/v1/messages", tc.body, nil)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400, body=%s", tc.name, resp.StatusCode, respBody)
		}
	}
}

func TestMessageRelay_SendMessageWithoutAnyUser(t *testing.T) {
	t.Parallel()

	h, err := NewMessageHandler(&stubSender{}, domain.NewApplication("app-token"), domain.NewUser(""), provider.SendOptions{})
	if err != nil {
		t.Fatalf("NewMessageHandler() error = %v", err)
	}
	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterMessageRoutes(app, h); err != nil {
		t.Fatalf("RegisterMessageRoutes() error = %v", err)
	}

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/messages", `{"message":"m"}`, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMessageRelay_SendMessageOutcomeMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		raw        provider.RawResponse
		wantStatus int
	}{
		{
			name:       "client rejection",
			raw:        provider.RawResponse{StatusCode: 400, Body: []byte(`{"status":0,"request":"r-1","errors":["user key is invalid"]}`)},
			wantStatus: fiber.StatusUnprocessableEntity,
		},
		{
			name:       "server failure",
			raw:        provider.RawResponse{StatusCode: 503, Body: []byte("unavailable")},
			wantStatus: fiber.StatusBadGateway,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sender := &stubSender{
				sendFn: func(ctx context.Context, msg *domain.Message, app domain.Application, user domain.User) *provider.SendResponse {
					return provider.NewSendResponse(tc.raw)
				},
			}
			app := newMessageTestApp(t, sender)

			resp, respBody := performRequest(t, app, http.MethodPost, "/v1/messages", `{"message":"m"}`, nil)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tc.wantStatus, respBody)
			}

			if tc.wantStatus == fiber.StatusUnprocessableEntity {
				var parsed sendMessageResponse
				if err := json.Unmarshal(respBody, &parsed); err != nil {
					t.Fatalf("json unmarshal error = %v", err)
				}
				if parsed.Request != "r-1" || len(parsed.Errors) != 1 || parsed.Errors[0] != "user key is invalid" {
					t.Fatalf("response = %+v", parsed)
				}
			}
		})
	}
}

func TestMessageRelay_SendsAreSerialized(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	sender := &stubSender{
		sendFn: func(ctx context.Context, msg *domain.Message, app domain.Application, user domain.User) *provider.SendResponse {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return okResponse("r")
		},
	}
	app := newMessageTestApp(t, sender)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewBufferString(`{"message":"m"}`))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			if _, err := app.Test(req, -1); err != nil {
				t.Errorf("app.Test() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Fatalf("max in-flight sends = %d, want 1", maxInFlight)
	}
}

func TestMessageRelay_RecipientQuota(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		limiter        *stubLimiter
		wantStatus     int
		wantRetryAfter string
		wantSends      int
	}{
		{
			name:       "allowed",
			limiter:    &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 3}},
			wantStatus: fiber.StatusOK,
			wantSends:  1,
		},
		{
			name:           "exceeded",
			limiter:        &stubLimiter{decision: ratelimit.Decision{RetryAfter: 1500 * time.Millisecond}},
			wantStatus:     fiber.StatusTooManyRequests,
			wantRetryAfter: "2",
		},
		{
			name:       "limiter unavailable",
			limiter:    &stubLimiter{err: errors.New("connection refused")},
			wantStatus: fiber.StatusServiceUnavailable,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sends := 0
			sender := &stubSender{
				sendFn: func(ctx context.Context, msg *domain.Message, app domain.Application, user domain.User) *provider.SendResponse {
					sends++
					return okResponse("r")
				},
			}

			h, err := NewMessageHandler(sender, domain.NewApplication("app-token"), domain.NewUser("default-user"), provider.SendOptions{})
			if err != nil {
				t.Fatalf("NewMessageHandler() error = %v", err)
			}
			h.SetLimiter(tc.limiter)
			app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
			if err := RegisterMessageRoutes(app, h); err != nil {
				t.Fatalf("RegisterMessageRoutes() error = %v", err)
			}

			resp, respBody := performRequest(t, app, http.MethodPost, "/v1/messages", `{"message":"m","user":"quota-user"}`, nil)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tc.wantStatus, respBody)
			}
			if got := resp.Header.Get(fiber.HeaderRetryAfter); got != tc.wantRetryAfter {
				t.Fatalf("Retry-After = %q, want %q", got, tc.wantRetryAfter)
			}
			if sends != tc.wantSends {
				t.Fatalf("sends = %d, want %d", sends, tc.wantSends)
			}
			if tc.limiter.recipient != "quota-user" {
				t.Fatalf("limiter recipient = %q, want quota-user", tc.limiter.recipient)
			}
		})
	}
}

func TestNewMessageHandlerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewMessageHandler(nil, domain.NewApplication("a"), domain.NewUser("u"), provider.SendOptions{}); err == nil {
		t.Fatal("expected error for nil sender")
	}
	if _, err := NewMessageHandler(&stubSender{}, domain.NewApplication(" "), domain.NewUser("u"), provider.SendOptions{}); err == nil {
		t.Fatal("expected error for blank application token")
	}
	if err := RegisterMessageRoutes(fiber.New(), nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func newMessageTestApp(t *testing.T, sender provider.Sender) *fiber.App {
	t.Helper()

	h, err := NewMessageHandler(sender, domain.NewApplication("app-token"), domain.NewUser("default-user"), provider.SendOptions{})
	if err != nil {
		t.Fatalf("NewMessageHandler() error = %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterMessageRoutes(app, h); err != nil {
		t.Fatalf("RegisterMessageRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func okResponse(id string) *provider.SendResponse {
	return provider.NewSendResponse(provider.RawResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"status":1,"request":"` + id + `"}`),
	})
}

type stubSender struct {
	sendFn func(ctx context.Context, msg *domain.Message, app domain.Application, user domain.User) *provider.SendResponse
}

func (s *stubSender) Send(ctx context.Context, msg *domain.Message, app domain.Application, user domain.User, opts provider.SendOptions) *provider.SendResponse {
	if s.sendFn == nil {
		return okResponse("stub")
	}
	return s.sendFn(ctx, msg, app, user)
}

type stubLimiter struct {
	decision  ratelimit.Decision
	err       error
	recipient string
}

func (l *stubLimiter) Allow(ctx context.Context, recipient string) (ratelimit.Decision, error) {
	l.recipient = recipient
	return l.decision, l.err
}

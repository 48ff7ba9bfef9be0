package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/pullover/internal/domain"
	"github.com/kursadbilgin/pullover/internal/observability"
	"github.com/kursadbilgin/pullover/internal/provider"
	"github.com/kursadbilgin/pullover/internal/ratelimit"
)

// MessageHandler relays JSON message requests to the send pipeline, one at a
// time.
type MessageHandler struct {
	sender      provider.Sender
	app         domain.Application
	defaultUser domain.User
	opts        provider.SendOptions
	limiter     ratelimit.Limiter

	mu sync.Mutex
}

func NewMessageHandler(
	sender provider.Sender,
	app domain.Application,
	defaultUser domain.User,
	opts provider.SendOptions,
) (*MessageHandler, error) {
	if sender == nil {
		return nil, fmt.Errorf("message sender is required")
	}
	if strings.TrimSpace(app.Token()) == "" {
		return nil, fmt.Errorf("application token is required")
	}

	return &MessageHandler{
		sender:      sender,
		app:         app,
		defaultUser: defaultUser,
		opts:        opts,
	}, nil
}

// SetLimiter enables a per-recipient quota checked before each send.
func (h *MessageHandler) SetLimiter(limiter ratelimit.Limiter) {
	h.limiter = limiter
}

func RegisterMessageRoutes(router fiber.Router, h *MessageHandler) error {
	if h == nil {
		return fmt.Errorf("message handler is required")
	}

	v1 := router.Group("/v1")
	v1.Post("/messages", h.SendMessage)

	return nil
}

type sendMessageRequest struct {
	Message   string        `json:"message"`
	Title     string        `json:"title"`
	Timestamp string        `json:"timestamp"`
	URL       string        `json:"url"`
	URLTitle  string        `json:"urlTitle"`
	Priority  priorityField `json:"priority"`
	User      string        `json:"user"`
}

// priorityField accepts a level name or its integer value.
type priorityField string

func (p *priorityField) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*p = priorityField(s)
		return nil
	}

	var n int
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("priority must be a string or integer")
	}
	*p = priorityField(fmt.Sprint(n))
	return nil
}

type sendMessageResponse struct {
	Status   int      `json:"status"`
	Request  string   `json:"request,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Attempts int      `json:"attempts"`
}

func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	msg, user, err := h.requestToDomain(req)
	if err != nil {
		return toHTTPError(err)
	}

	ctx := c.UserContext()
	if correlationID := requestCorrelationID(c); correlationID != "" {
		ctx = observability.WithCorrelationID(ctx, correlationID)
	}

	if h.limiter != nil {
		decision, err := h.limiter.Allow(ctx, user.Key())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, fmt.Sprintf("recipient quota unavailable: %v", err))
		}
		if !decision.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
			return fiber.NewError(fiber.StatusTooManyRequests, "recipient quota exceeded")
		}
	}

	h.mu.Lock()
	resp := h.sender.Send(ctx, msg, h.app, user, h.opts)
	h.mu.Unlock()

	err = resp.RaiseForStatus()
	switch e := err.(type) {
	case nil:
		return c.Status(fiber.StatusOK).JSON(sendMessageResponse{
			Status:   provider.StatusSuccess,
			Request:  resp.ID(),
			Attempts: resp.Attempts(),
		})
	case *provider.ClientSendError:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(sendMessageResponse{
			Status:   e.Status,
			Request:  resp.ID(),
			Errors:   e.Errors,
			Attempts: resp.Attempts(),
		})
	case *provider.ServerSendError:
		return fiber.NewError(fiber.StatusBadGateway, e.Error())
	default:
		return err
	}
}

func (h *MessageHandler) requestToDomain(req sendMessageRequest) (*domain.Message, domain.User, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, domain.User{}, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	user := h.defaultUser
	if key := strings.TrimSpace(req.User); key != "" {
		user = domain.NewUser(key)
	}
	if strings.TrimSpace(user.Key()) == "" {
		return nil, domain.User{}, fmt.Errorf("%w: user is required", domain.ErrValidation)
	}

	opts := []domain.MessageOption{
		domain.WithTitle(req.Title),
		domain.WithURL(strings.TrimSpace(req.URL)),
		domain.WithURLTitle(req.URLTitle),
	}

	if raw := strings.TrimSpace(string(req.Priority)); raw != "" {
		priority, err := domain.ParsePriorityFromString(raw)
		if err != nil {
			return nil, domain.User{}, err
		}
		opts = append(opts, domain.WithPriority(priority))
	}

	if raw := strings.TrimSpace(req.Timestamp); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, domain.User{}, fmt.Errorf("%w: timestamp must be RFC3339", domain.ErrValidation)
		}
		opts = append(opts, domain.WithTimestamp(ts))
	}

	msg, err := domain.NewMessage(req.Message, opts...)
	if err != nil {
		return nil, domain.User{}, err
	}
	return msg, user, nil
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}

package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/pullover/internal/domain"
	"github.com/kursadbilgin/pullover/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultEndpoint       = "https://api.pushover.net/1/messages.json"
	DefaultRequestTimeout = 3 * time.Second
)

// Version is reported in the User-Agent header. Overridden at link time.
var Version = "dev"

// SendOptions tunes one send sequence. Zero values select the defaults.
type SendOptions struct {
	Timeout       time.Duration
	RetryInterval time.Duration
	MaxTries      int
}

func DefaultSendOptions() SendOptions {
	return SendOptions{
		Timeout:       DefaultRequestTimeout,
		RetryInterval: DefaultRetryInterval,
		MaxTries:      DefaultMaxTries,
	}
}

func (o SendOptions) withDefaults() SendOptions {
	defaults := DefaultSendOptions()
	if o.Timeout <= 0 {
		o.Timeout = defaults.Timeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = defaults.RetryInterval
	}
	if o.MaxTries <= 0 {
		o.MaxTries = defaults.MaxTries
	}
	return o
}

var _ Sender = (*PushoverProvider)(nil)

// PushoverProvider sends messages to the Pushover messages endpoint.
type PushoverProvider struct {
	client    *resty.Client
	endpoint  string
	userAgent string
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewPushoverProvider(endpoint string) (*PushoverProvider, error) {
	return NewPushoverProviderWithClient(endpoint, resty.New())
}

// NewPushoverProviderWithClient uses a caller-owned resty client, so one
// connection pool can serve many sends. It sets the client's retry count to
// zero; a client shared with other code loses its resty retries.
func NewPushoverProviderWithClient(endpoint string, client *resty.Client) (*PushoverProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		trimmedEndpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid pushover endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	// Retries are driven by RetryPolicy and timeouts by the per-attempt
	// context, never by resty.
	client.SetRetryCount(0)

	return &PushoverProvider{
		client:    client,
		endpoint:  trimmedEndpoint,
		userAgent: UserAgent(),
		logger:    zap.NewNop(),
		now:       time.Now,
		sleep:     sleepWithContext,
	}, nil
}

// UserAgent identifies this client to the service.
func UserAgent() string {
	return fmt.Sprintf("pullover/%s (+https://github.com/kursadbilgin/pullover)", Version)
}

func (p *PushoverProvider) SetLogger(logger *zap.Logger) {
	if p == nil || logger == nil {
		return
	}
	p.logger = logger
}

func (p *PushoverProvider) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Endpoint returns the URL messages are posted to.
func (p *PushoverProvider) Endpoint() string {
	if p == nil {
		return ""
	}
	return p.endpoint
}

// Close releases idle connections held by the underlying transport.
func (p *PushoverProvider) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.GetClient().CloseIdleConnections()
}

// Send signs msg for app and user, posts it and retries transient failures.
// The outcome, including any failure, is carried by the returned response.
func (p *PushoverProvider) Send(
	ctx context.Context,
	msg *domain.Message,
	app domain.Application,
	user domain.User,
	opts SendOptions,
) *SendResponse {
	if ctx == nil {
		ctx = context.Background()
	}
	if p == nil || p.client == nil {
		return NewSendResponse(RawResponse{Err: fmt.Errorf("provider is not initialized")})
	}
	if msg == nil {
		return NewSendResponse(RawResponse{Err: fmt.Errorf("message is required")})
	}
	opts = opts.withDefaults()

	if _, ok := observability.CorrelationIDFromContext(ctx); !ok {
		ctx = observability.WithCorrelationID(ctx, uuid.NewString())
	}
	logger := observability.WithContextLogger(p.logger, ctx)

	form := signedForm(msg, app, user)

	logger.Info("sending message",
		zap.Stringer("message", msg),
		zap.Stringer("user", user),
		zap.Stringer("application", app),
		zap.Int("maxTries", opts.MaxTries),
	)

	p.metrics.IncSendInFlight()
	defer p.metrics.DecSendInFlight()

	policy := RetryPolicy{
		MaxTries: opts.MaxTries,
		Interval: opts.RetryInterval,
		OnRetry: func(attempt Attempt) {
			logger.Warn("send attempt failed, retrying",
				zap.Int("attempt", attempt.Number),
				zap.Int("httpStatus", attempt.Response.StatusCode),
				zap.Duration("delay", opts.RetryInterval),
				zap.NamedError("cause", attempt.Response.Err),
			)
			p.metrics.IncRetry()
		},
	}

	start := p.now()
	attempt := policy.Do(ctx, p.sleep, func(ctx context.Context) RawResponse {
		raw := p.post(ctx, form, opts.Timeout)
		p.metrics.IncSendAttempt(attemptResult(raw))
		logger.Debug("send attempt finished",
			zap.Int("httpStatus", raw.StatusCode),
			zap.Int("bodyBytes", len(raw.Body)),
			zap.NamedError("cause", raw.Err),
		)
		return raw
	})
	p.metrics.ObserveSendDuration(p.now().Sub(start))

	response := NewSendResponse(attempt.Response)
	response.attempts = attempt.Number

	p.record(logger, msg, response)
	return response
}

// signedForm builds the request payload and stamps each identity onto it.
func signedForm(msg *domain.Message, signers ...Signer) url.Values {
	form := msg.Form()
	for _, signer := range signers {
		signer.Sign(form)
	}
	return form
}

func (p *PushoverProvider) post(ctx context.Context, form url.Values, timeout time.Duration) RawResponse {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response, err := p.client.R().
		SetContext(attemptCtx).
		SetHeader("User-Agent", p.userAgent).
		SetHeader("Accept", "application/json").
		SetFormDataFromValues(form).
		Post(p.endpoint)

	raw := RawResponse{Err: err}
	if response != nil && response.RawResponse != nil {
		raw.StatusCode = response.StatusCode()
		raw.Header = response.Header()
		raw.Body = response.Body()
	}
	if err == nil && raw.StatusCode == 0 {
		raw.Err = fmt.Errorf("provider returned empty response")
	}
	return raw
}

func (p *PushoverProvider) record(logger *zap.Logger, msg *domain.Message, response *SendResponse) {
	fields := []zap.Field{
		zap.Int("attempts", response.Attempts()),
		zap.Int("httpStatus", response.Raw().StatusCode),
	}

	err := response.RaiseForStatus()
	switch e := err.(type) {
	case nil:
		logger.Info("message sent", append(fields, zap.String("request", response.ID()))...)
		p.metrics.IncMessageSent(msg.Priority().String())
	case *ClientSendError:
		logger.Warn("message rejected",
			append(fields,
				zap.String("request", response.ID()),
				zap.Int("status", e.Status),
				zap.Strings("errors", e.Errors),
			)...,
		)
		p.metrics.IncMessageFailed("client_error")
	case *ServerSendError:
		logger.Warn("message send failed", append(fields, zap.Error(e))...)
		p.metrics.IncMessageFailed("server_error")
	}
}

func attemptResult(raw RawResponse) string {
	switch {
	case raw.StatusCode == 0:
		return "transport_error"
	case raw.Successful():
		return "success"
	case raw.StatusCode >= 400 && raw.StatusCode < 500:
		return "client_error"
	default:
		return "server_error"
	}
}

// Package pullover sends Pushover notifications.
//
// The one-call form is Send:
//
//	resp, err := pullover.Send(ctx, "Backup finished", userKey, appToken,
//		pullover.WithTitle("nightly"), pullover.WithPriority(pullover.PriorityHigh))
//	if err != nil {
//		return err // the message itself was invalid
//	}
//	if err := resp.RaiseForStatus(); err != nil {
//		return err // *ClientSendError or *ServerSendError
//	}
//
// For more control build a Message, an Application and a User and pass them
// to a Sender such as the one returned by NewPushoverProvider.
package pullover

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/pullover/internal/domain"
	"github.com/kursadbilgin/pullover/internal/provider"
)

type (
	Message       = domain.Message
	MessageOption = domain.MessageOption
	Priority      = domain.Priority
	Application   = domain.Application
	User          = domain.User

	Sender           = provider.Sender
	Signer           = provider.Signer
	PushoverProvider = provider.PushoverProvider
	SendOptions      = provider.SendOptions
	SendResponse     = provider.SendResponse
	RawResponse      = provider.RawResponse
	RetryPolicy      = provider.RetryPolicy
	Attempt          = provider.Attempt

	SendError       = provider.SendError
	ClientSendError = provider.ClientSendError
	ServerSendError = provider.ServerSendError
)

const (
	PriorityLowest = domain.PriorityLowest
	PriorityLow    = domain.PriorityLow
	PriorityNormal = domain.PriorityNormal
	PriorityHigh   = domain.PriorityHigh

	DefaultEndpoint       = provider.DefaultEndpoint
	DefaultRequestTimeout = provider.DefaultRequestTimeout
	DefaultRetryInterval  = provider.DefaultRetryInterval
	DefaultMaxTries       = provider.DefaultMaxTries
	StatusSuccess         = provider.StatusSuccess
)

// ErrValidation is wrapped by errors from NewMessage and ParsePriorityFromString.
var ErrValidation = domain.ErrValidation

var (
	NewMessage              = domain.NewMessage
	WithTitle               = domain.WithTitle
	WithTimestamp           = domain.WithTimestamp
	WithURL                 = domain.WithURL
	WithURLTitle            = domain.WithURLTitle
	WithPriority            = domain.WithPriority
	NewApplication          = domain.NewApplication
	NewUser                 = domain.NewUser
	ParsePriorityFromString = domain.ParsePriorityFromString

	NewSendResponse    = provider.NewSendResponse
	DefaultSendOptions = provider.DefaultSendOptions
	ShouldRetry        = provider.ShouldRetry
	IsTransient        = provider.IsTransient
)

func NewPushoverProvider(endpoint string) (*PushoverProvider, error) {
	return provider.NewPushoverProvider(endpoint)
}

// NewPushoverProviderWithClient reuses client; its resty retry count is set
// to zero.
func NewPushoverProviderWithClient(endpoint string, client *resty.Client) (*PushoverProvider, error) {
	return provider.NewPushoverProviderWithClient(endpoint, client)
}

// Client pairs a Sender with the options used for every send.
type Client struct {
	Sender  Sender
	Options SendOptions
}

// NewClient returns a Client posting to endpoint with the default options.
// An empty endpoint selects DefaultEndpoint.
func NewClient(endpoint string) (*Client, error) {
	p, err := provider.NewPushoverProvider(endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{Sender: p, Options: provider.DefaultSendOptions()}, nil
}

// Send builds a message from body and opts and sends it from appToken to
// userKey. The error is non-nil only when the message is invalid; delivery
// failures are reported by the response.
func (c *Client) Send(ctx context.Context, body, userKey, appToken string, opts ...MessageOption) (*SendResponse, error) {
	if c == nil || c.Sender == nil {
		return nil, fmt.Errorf("pullover client has no sender")
	}

	msg, err := domain.NewMessage(body, opts...)
	if err != nil {
		return nil, err
	}
	return c.Sender.Send(ctx, msg, domain.NewApplication(appToken), domain.NewUser(userKey), c.Options), nil
}

// DefaultClient is used by Send.
var DefaultClient = mustNewClient(DefaultEndpoint)

func mustNewClient(endpoint string) *Client {
	c, err := NewClient(endpoint)
	if err != nil {
		panic(err)
	}
	return c
}

// Send sends body from appToken to userKey using DefaultClient.
func Send(ctx context.Context, body, userKey, appToken string, opts ...MessageOption) (*SendResponse, error) {
	return DefaultClient.Send(ctx, body, userKey, appToken, opts...)
}

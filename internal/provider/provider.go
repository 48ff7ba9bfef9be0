package provider

import (
	"context"
	"net/url"

	"github.com/kursadbilgin/pullover/internal/domain"
)

// Sender is the outbound message delivery port. Implementations never fail
// with an error: every transport or service failure is reported inside the
// returned SendResponse.
type Sender interface {
	Send(ctx context.Context, msg *domain.Message, app domain.Application, user domain.User, opts SendOptions) *SendResponse
}

// Signer stamps an identity onto an outgoing form payload.
type Signer interface {
	Sign(form url.Values)
}

var (
	_ Signer = domain.Application{}
	_ Signer = domain.User{}
)

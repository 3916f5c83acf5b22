// Package api is the pull side of the mirror: an HTTP+JSON client for the
// authoritative conversation, message and user endpoints.
package api

import (
	"context"
	"errors"

	"github.com/mqy/minimirror/wire"
)

// ErrUnauthorized marks a 401-equivalent pull failure. It is fatal to the
// session: callers tear down and force a new login. Every other pull error
// is transient and retried by the next scheduled cycle.
var ErrUnauthorized = errors.New("api: unauthorized")

//go:generate mockgen -destination=mock/puller.go -package=api_mock github.com/mqy/minimirror/api IPuller

type IPuller interface {
	// GetConversations pulls the full conversation list snapshot.
	GetConversations(ctx context.Context) ([]*wire.Conversation, error)

	// GetMessages pulls the ordered message list of one conversation.
	GetMessages(ctx context.Context, conversationID int64) ([]*wire.Message, error)

	// GetMe fetches the current user's identity.
	GetMe(ctx context.Context) (*wire.User, error)

	// GetUsers fetches the user directory.
	GetUsers(ctx context.Context) ([]*wire.User, error)
}

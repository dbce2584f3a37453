// Package messaging wraps the external conversation provider. Thread and
// participant records in our store stay authoritative; provider calls are
// either idempotent (create with unique name) or best-effort (attributes).
package messaging

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrDuplicate marks a create that collided with an existing resource of the
// same unique name. Expected under concurrency; callers recover by fetching
// the existing conversation instead of failing.
var ErrDuplicate = errors.New("messaging: duplicate conversation")

// Conversation is the provider-side resource a thread points at.
type Conversation struct {
	SID string
}

type CreateConversationInput struct {
	UniqueName   string
	FriendlyName string
	Attributes   json.RawMessage
}

// Provider is the conversation/messaging backend contract.
type Provider interface {
	// CreateConversation creates a conversation; a unique-name collision is
	// reported as an error matching ErrDuplicate.
	CreateConversation(ctx context.Context, in CreateConversationInput) (*Conversation, error)
	// FetchConversation resolves an existing conversation by unique name.
	FetchConversation(ctx context.Context, uniqueName string) (*Conversation, error)
	// AddParticipant registers identity on the conversation with the given
	// role token. Adding an identity that is already present is a no-op.
	AddParticipant(ctx context.Context, conversationSID, identity, roleSID string) error
	// UpdateAttributes replaces the conversation's attributes document.
	UpdateAttributes(ctx context.Context, conversationSID string, attributes json.RawMessage) error
}

// SideEffect records the outcome of a best-effort provider call that the
// orchestration swallows by design. Returned alongside results so callers
// and tests can see what was attempted without the failure becoming fatal.
type SideEffect struct {
	Op  string
	Err error
}

func (e SideEffect) Failed() bool {
	return e.Err != nil
}

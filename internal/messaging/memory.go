package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/FynbosAI/palettefineart-sub006/internal/util"
)

// MemoryProvider is an in-process Provider used for local development and
// tests. It enforces the same unique-name semantics as the real backend.
type MemoryProvider struct {
	mu           sync.Mutex
	byUniqueName map[string]*memoryConversation
	bySID        map[string]*memoryConversation
}

type memoryConversation struct {
	sid          string
	uniqueName   string
	friendlyName string
	attributes   json.RawMessage
	participants map[string]string // identity -> roleSID
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		byUniqueName: make(map[string]*memoryConversation),
		bySID:        make(map[string]*memoryConversation),
	}
}

func (p *MemoryProvider) CreateConversation(ctx context.Context, in CreateConversationInput) (*Conversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byUniqueName[in.UniqueName]; exists {
		return nil, fmt.Errorf("create conversation %s: %w", in.UniqueName, ErrDuplicate)
	}
	conv := &memoryConversation{
		sid:          util.NewID("CH"),
		uniqueName:   in.UniqueName,
		friendlyName: in.FriendlyName,
		attributes:   in.Attributes,
		participants: make(map[string]string),
	}
	p.byUniqueName[in.UniqueName] = conv
	p.bySID[conv.sid] = conv
	return &Conversation{SID: conv.sid}, nil
}

func (p *MemoryProvider) FetchConversation(ctx context.Context, uniqueName string) (*Conversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conv, ok := p.byUniqueName[uniqueName]
	if !ok {
		return nil, fmt.Errorf("fetch conversation %s: not found", uniqueName)
	}
	return &Conversation{SID: conv.sid}, nil
}

func (p *MemoryProvider) AddParticipant(ctx context.Context, conversationSID, identity, roleSID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conv, ok := p.bySID[conversationSID]
	if !ok {
		return fmt.Errorf("add participant: conversation %s not found", conversationSID)
	}
	conv.participants[identity] = roleSID
	return nil
}

func (p *MemoryProvider) UpdateAttributes(ctx context.Context, conversationSID string, attributes json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conv, ok := p.bySID[conversationSID]
	if !ok {
		return fmt.Errorf("update attributes: conversation %s not found", conversationSID)
	}
	conv.attributes = attributes
	return nil
}

// Participants returns a copy of the identities registered on a conversation.
// Test helper.
func (p *MemoryProvider) Participants(conversationSID string) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	conv, ok := p.bySID[conversationSID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(conv.participants))
	for k, v := range conv.participants {
		out[k] = v
	}
	return out
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	conversations "github.com/twilio/twilio-go/rest/conversations/v1"
)

// Twilio error codes for duplicate resources.
const (
	codeConversationExists = 50353
	codeParticipantExists  = 50433
)

// TwilioProvider implements Provider against Twilio Conversations, scoped to
// a single chat service.
type TwilioProvider struct {
	client     *twilio.RestClient
	serviceSID string
}

func NewTwilioProvider(accountSID, authToken, chatServiceSID string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{client: client, serviceSID: chatServiceSID}
}

func (p *TwilioProvider) CreateConversation(ctx context.Context, in CreateConversationInput) (*Conversation, error) {
	params := &conversations.CreateServiceConversationParams{}
	params.SetUniqueName(in.UniqueName)
	if in.FriendlyName != "" {
		params.SetFriendlyName(in.FriendlyName)
	}
	if len(in.Attributes) > 0 {
		params.SetAttributes(string(in.Attributes))
	}

	conv, err := p.client.ConversationsV1.CreateServiceConversation(p.serviceSID, params)
	if err != nil {
		if isTwilioDuplicate(err, codeConversationExists) {
			return nil, fmt.Errorf("create conversation %s: %w", in.UniqueName, ErrDuplicate)
		}
		return nil, fmt.Errorf("create conversation %s: %w", in.UniqueName, err)
	}
	if conv.Sid == nil {
		return nil, fmt.Errorf("create conversation %s: response missing sid", in.UniqueName)
	}
	return &Conversation{SID: *conv.Sid}, nil
}

// FetchConversation resolves by unique name; Twilio accepts unique names in
// the sid position of the fetch endpoint.
func (p *TwilioProvider) FetchConversation(ctx context.Context, uniqueName string) (*Conversation, error) {
	conv, err := p.client.ConversationsV1.FetchServiceConversation(p.serviceSID, uniqueName)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation %s: %w", uniqueName, err)
	}
	if conv.Sid == nil {
		return nil, fmt.Errorf("fetch conversation %s: response missing sid", uniqueName)
	}
	return &Conversation{SID: *conv.Sid}, nil
}

func (p *TwilioProvider) AddParticipant(ctx context.Context, conversationSID, identity, roleSID string) error {
	params := &conversations.CreateServiceConversationParticipantParams{}
	params.SetIdentity(identity)
	if roleSID != "" {
		params.SetRoleSid(roleSID)
	}

	_, err := p.client.ConversationsV1.CreateServiceConversationParticipant(p.serviceSID, conversationSID, params)
	if err != nil {
		// Already a member: the add is idempotent from the caller's view.
		if isTwilioDuplicate(err, codeParticipantExists) {
			return nil
		}
		return fmt.Errorf("add participant %s to %s: %w", identity, conversationSID, err)
	}
	return nil
}

func (p *TwilioProvider) UpdateAttributes(ctx context.Context, conversationSID string, attributes json.RawMessage) error {
	params := &conversations.UpdateServiceConversationParams{}
	params.SetAttributes(string(attributes))

	_, err := p.client.ConversationsV1.UpdateServiceConversation(p.serviceSID, conversationSID, params)
	if err != nil {
		return fmt.Errorf("update attributes on %s: %w", conversationSID, err)
	}
	return nil
}

func isTwilioDuplicate(err error, code int) bool {
	var restErr *twilioclient.TwilioRestError
	if !errors.As(err, &restErr) {
		return false
	}
	return restErr.Code == code || restErr.Status == 409
}

package domain

import (
	"context"
	"time"
)

// ConversationStateReady is the backend state of a conversation that is still active.
const ConversationStateReady = "READY"

// ChannelCredentials are the Messenger secrets of one bot configuration version.
type ChannelCredentials struct {
	AppSecret         string `json:"app_secret"`
	VerificationToken string `json:"verification_token"`
	AccessToken       string `json:"access_token"`
}

// SessionKey identifies a conversation session: one per bot and sender.
type SessionKey struct {
	BotID    string
	SenderID string
}

func (k SessionKey) String() string {
	return k.BotID + ":" + k.SenderID
}

type TextMessage struct {
	Text string
}

type QuickReplyMessage struct {
	Payload string
}

// InboundEvent is one user message decoded from a webhook batch.
// Exactly one of Message and QuickReply is set.
type InboundEvent struct {
	SenderID   string
	Message    *TextMessage
	QuickReply *QuickReplyMessage
}

// Text returns the text to relay: the quick reply payload or the message text.
func (e InboundEvent) Text() string {
	switch {
	case e.QuickReply != nil:
		return e.QuickReply.Payload
	case e.Message != nil:
		return e.Message.Text
	}
	return ""
}

// QuickReplyOption is one selectable option attached to an outbound message.
type QuickReplyOption struct {
	Value       string `json:"value"`
	Expressions string `json:"expressions"`
}

// BackendReply is the decoded view of a backend response.
type BackendReply struct {
	Segments          []string
	QuickReplies      []QuickReplyOption
	ConversationState string
	HasState          bool
}

// EndsSession reports whether the backend left the active state.
func (r BackendReply) EndsSession() bool {
	return r.HasState && r.ConversationState != ConversationStateReady
}

// ConversationStart is the raw outcome of a conversation creation call.
type ConversationStart struct {
	StatusCode int
	Location   string
}

type SenderAction string

const (
	SenderActionTypingOn  SenderAction = "typing_on"
	SenderActionTypingOff SenderAction = "typing_off"
)

// ICredentialCache caches resolved credentials by bot and configuration version.
type ICredentialCache interface {
	Get(ctx context.Context, botID string, version int) (ChannelCredentials, bool, error)
	Save(ctx context.Context, botID string, version int, creds ChannelCredentials) error
}

// ISessionStore maps session keys to backend conversation ids.
type ISessionStore interface {
	Get(ctx context.Context, key SessionKey) (string, bool, error)
	Save(ctx context.Context, key SessionKey, conversationID string) error
	Delete(ctx context.Context, key SessionKey) error
}

// ISessionLocker is implemented by stores shared between replicas. Lock
// returns ErrLockNotAcquired when another holder owns the key.
type ISessionLocker interface {
	Lock(ctx context.Context, key SessionKey, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key SessionKey, token string) error
}

// IConversationBackend is the conversational backend API.
type IConversationBackend interface {
	StartConversation(ctx context.Context, environment, botID string) (ConversationStart, error)
	Say(ctx context.Context, environment, botID, conversationID, text string) ([]byte, error)
}

// IPlatformSender sends outbound actions to one Messenger page.
type IPlatformSender interface {
	SendSenderAction(ctx context.Context, recipientID string, action SenderAction) error
	SendText(ctx context.Context, recipientID, text string, quickReplies []QuickReplyOption) error
}

// IWebhookVerifier authenticates inbound webhook calls for one page.
type IWebhookVerifier interface {
	VerifySignature(body []byte, signature256, signature1 string) error
	VerifyToken(mode, token string) error
}

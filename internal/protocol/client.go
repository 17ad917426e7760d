// Package protocol defines the boundary to the Telegram client library the
// service drives. The pool and engine only ever see these interfaces; the
// concrete MTProto implementation is injected at startup.
package protocol

import (
	"context"
	"time"
)

// User identifies the account behind an authorized session.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Entity is a resolved chat, channel or user the session can address.
type Entity struct {
	ID    int64
	Title string
	Type  string // "user", "chat", "channel"
}

// Message is an inbound or fetched message on a conversation.
type Message struct {
	ID     int64
	ChatID int64
	Text   string
	Date   time.Time
}

// NewMessageHandler receives each new message on a subscribed conversation,
// in the order the transport surfaces them.
type NewMessageHandler func(msg Message)

// Subscription is the handle for one new-message registration. Cancel removes
// the handler at the source; it is safe to call more than once.
type Subscription interface {
	Cancel()
}

// Client is one live connection for one account. All blocking calls take a
// context; the implementation applies its own transport timeouts on top.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	IsAuthorized(ctx context.Context) (bool, error)

	// SendCodeRequest asks the network to deliver a login code and returns
	// the code hash needed to complete the sign-in.
	SendCodeRequest(ctx context.Context, phone string) (codeHash string, err error)
	// SignIn completes login with the delivered code. Returns
	// ErrPasswordNeeded when the account has two-step verification enabled.
	SignIn(ctx context.Context, phone, codeHash, code string) (*User, error)
	// SignInWithPassword completes a two-step verification login.
	SignInWithPassword(ctx context.Context, password string) (*User, error)

	GetSelf(ctx context.Context) (*User, error)
	GetEntity(ctx context.Context, chatID int64) (*Entity, error)
	GetMessages(ctx context.Context, chatID int64, limit int) ([]Message, error)

	// ForwardMessage mirrors sourceMsgID from sourceID into destID and
	// returns the id of the message created at the destination.
	ForwardMessage(ctx context.Context, destID, sourceMsgID, sourceID int64) (int64, error)

	// OnNewMessage registers handler for new messages on chatID.
	OnNewMessage(chatID int64, handler NewMessageHandler) Subscription
}

// DialOptions carries everything needed to open a session for one account.
type DialOptions struct {
	Phone       string
	APIID       int
	APIHash     string
	SessionPath string
	Proxy       string
}

// Dialer creates clients and manages the on-disk session artifacts they use.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Client, error)
	// RemoveSession deletes the local session artifact for phone, if any.
	RemoveSession(phone string) error
}

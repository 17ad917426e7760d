// Package inproc implements the protocol boundary against an in-process
// network. It backs the test suites and the "inproc" telegram driver used
// for local development; real deployments substitute an MTProto adapter.
package inproc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mastuka/tg-tool-bot/internal/protocol"
)

// Network is a shared in-memory messaging network. Accounts, chats and
// messages live here; clients are thin views onto it.
type Network struct {
	mu        sync.Mutex
	accounts  map[string]*accountState
	chats     map[int64]*chatState
	clients   map[string][]*client
	nextMsgID int64
	nextSubID int64

	// Fault injection, consulted on every matching call.
	ConnectErr  map[string]error // phone -> error on Connect
	ForwardErr  map[int64]error  // destination chat -> error on ForwardMessage
	RemovedSess []string
}

type accountState struct {
	user       protocol.User
	code       string
	password   string
	authorized bool
}

type chatState struct {
	entity   protocol.Entity
	messages []protocol.Message
	subs     map[int64]protocol.NewMessageHandler
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		accounts:   make(map[string]*accountState),
		chats:      make(map[int64]*chatState),
		clients:    make(map[string][]*client),
		ConnectErr: make(map[string]error),
		ForwardErr: make(map[int64]error),
	}
}

// AddAccount seeds an unauthorized account. password may be empty; when set,
// sign-in requires the two-step verification step.
func (n *Network) AddAccount(phone string, user protocol.User, code, password string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts[phone] = &accountState{user: user, code: code, password: password}
}

// Authorize marks an account as already signed in, as if a previous session
// artifact existed.
func (n *Network) Authorize(phone string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if acc := n.accounts[phone]; acc != nil {
		acc.authorized = true
	}
}

// AddChat seeds a conversation.
func (n *Network) AddChat(id int64, title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chats[id] = &chatState{
		entity: protocol.Entity{ID: id, Title: title, Type: "channel"},
		subs:   make(map[int64]protocol.NewMessageHandler),
	}
}

// Inject posts a new message into a chat and delivers it synchronously to
// every subscriber, in subscription order.
func (n *Network) Inject(chatID int64, text string) protocol.Message {
	n.mu.Lock()
	chat := n.chats[chatID]
	if chat == nil {
		n.mu.Unlock()
		return protocol.Message{}
	}
	n.nextMsgID++
	msg := protocol.Message{ID: n.nextMsgID, ChatID: chatID, Text: text, Date: time.Now()}
	chat.messages = append(chat.messages, msg)
	handlers := make([]protocol.NewMessageHandler, 0, len(chat.subs))
	for _, h := range chat.subs {
		handlers = append(handlers, h)
	}
	n.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
	return msg
}

// ChatMessages returns a copy of the messages in a chat.
func (n *Network) ChatMessages(chatID int64) []protocol.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	chat := n.chats[chatID]
	if chat == nil {
		return nil
	}
	out := make([]protocol.Message, len(chat.messages))
	copy(out, chat.messages)
	return out
}

// Drop severs every live client for phone, simulating a transport-level
// disconnect.
func (n *Network) Drop(phone string) {
	n.mu.Lock()
	clients := append([]*client(nil), n.clients[phone]...)
	n.mu.Unlock()
	for _, c := range clients {
		_ = c.Disconnect()
	}
}

// Dialer returns the protocol.Dialer view of the network.
func (n *Network) Dialer() protocol.Dialer {
	return &dialer{net: n}
}

type dialer struct {
	net *Network
}

func (d *dialer) Dial(ctx context.Context, opts protocol.DialOptions) (protocol.Client, error) {
	d.net.mu.Lock()
	defer d.net.mu.Unlock()
	if _, ok := d.net.accounts[opts.Phone]; !ok {
		return nil, protocol.ErrPhoneInvalid
	}
	c := &client{net: d.net, phone: opts.Phone}
	d.net.clients[opts.Phone] = append(d.net.clients[opts.Phone], c)
	return c, nil
}

func (d *dialer) RemoveSession(phone string) error {
	d.net.mu.Lock()
	defer d.net.mu.Unlock()
	d.net.RemovedSess = append(d.net.RemovedSess, phone)
	return nil
}

type client struct {
	net   *Network
	phone string

	mu        sync.Mutex
	connected bool
	codeOK    bool
}

func (c *client) Connect(ctx context.Context) error {
	c.net.mu.Lock()
	err := c.net.ConnectErr[c.phone]
	c.net.mu.Unlock()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *client) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *client) IsAuthorized(ctx context.Context) (bool, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	acc := c.net.accounts[c.phone]
	return acc != nil && acc.authorized, nil
}

func (c *client) SendCodeRequest(ctx context.Context, phone string) (string, error) {
	return "hash:" + phone, nil
}

func (c *client) SignIn(ctx context.Context, phone, codeHash, code string) (*protocol.User, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	acc := c.net.accounts[phone]
	if acc == nil {
		return nil, protocol.ErrPhoneInvalid
	}
	if code != acc.code {
		return nil, protocol.ErrCodeInvalid
	}
	c.mu.Lock()
	c.codeOK = true
	c.mu.Unlock()
	if acc.password != "" {
		return nil, protocol.ErrPasswordNeeded
	}
	acc.authorized = true
	u := acc.user
	return &u, nil
}

func (c *client) SignInWithPassword(ctx context.Context, password string) (*protocol.User, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	acc := c.net.accounts[c.phone]
	if acc == nil {
		return nil, protocol.ErrPhoneInvalid
	}
	c.mu.Lock()
	codeOK := c.codeOK
	c.mu.Unlock()
	if !codeOK || password != acc.password {
		return nil, protocol.ErrPasswordInvalid
	}
	acc.authorized = true
	u := acc.user
	return &u, nil
}

func (c *client) GetSelf(ctx context.Context) (*protocol.User, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	acc := c.net.accounts[c.phone]
	if acc == nil || !acc.authorized {
		return nil, protocol.ErrNotAuthorized
	}
	u := acc.user
	return &u, nil
}

func (c *client) GetEntity(ctx context.Context, chatID int64) (*protocol.Entity, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	chat := c.net.chats[chatID]
	if chat == nil {
		return nil, protocol.ErrPeerInvalid
	}
	e := chat.entity
	return &e, nil
}

func (c *client) GetMessages(ctx context.Context, chatID int64, limit int) ([]protocol.Message, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	chat := c.net.chats[chatID]
	if chat == nil {
		return nil, protocol.ErrPeerInvalid
	}
	msgs := chat.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]protocol.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (c *client) ForwardMessage(ctx context.Context, destID, sourceMsgID, sourceID int64) (int64, error) {
	if !c.IsConnected() {
		return 0, fmt.Errorf("client for %s is disconnected", c.phone)
	}

	c.net.mu.Lock()
	defer c.net.mu.Unlock()

	if err := c.net.ForwardErr[destID]; err != nil {
		return 0, err
	}

	dest := c.net.chats[destID]
	if dest == nil {
		return 0, protocol.ErrPeerInvalid
	}
	source := c.net.chats[sourceID]
	if source == nil {
		return 0, protocol.ErrPeerInvalid
	}

	var text string
	for _, m := range source.messages {
		if m.ID == sourceMsgID {
			text = m.Text
			break
		}
	}

	c.net.nextMsgID++
	fwd := protocol.Message{ID: c.net.nextMsgID, ChatID: destID, Text: text, Date: time.Now()}
	dest.messages = append(dest.messages, fwd)
	return fwd.ID, nil
}

func (c *client) OnNewMessage(chatID int64, handler protocol.NewMessageHandler) protocol.Subscription {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	chat := c.net.chats[chatID]
	if chat == nil {
		return &subscription{}
	}
	c.net.nextSubID++
	id := c.net.nextSubID
	chat.subs[id] = handler
	return &subscription{net: c.net, chatID: chatID, id: id}
}

type subscription struct {
	net    *Network
	chatID int64
	id     int64
}

func (s *subscription) Cancel() {
	if s.net == nil {
		return
	}
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	if chat := s.net.chats[s.chatID]; chat != nil {
		delete(chat.subs, s.id)
	}
}

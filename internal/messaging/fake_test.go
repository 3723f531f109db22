package messaging

import (
	"context"
	"sync"

	"go.mau.fi/whatsmeow/types"

	"your.org/whatsapp-rest/internal/media"
	"your.org/whatsapp-rest/internal/provider"
)

type fakeGateway struct {
	mu         sync.Mutex
	calls      []string
	chats      []types.JID
	registered bool
	err        error
	logoutErr  error
	chat       *fakeChat
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{chat: &fakeChat{id: "msgId123"}}
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
}

func (g *fakeGateway) Subscribe(h provider.EventHandler) {}

func (g *fakeGateway) Logout(ctx context.Context) error {
	g.record("logout")
	return g.logoutErr
}

func (g *fakeGateway) IsRegisteredUser(ctx context.Context, jid types.JID) (bool, error) {
	g.record("registered:" + jid.String())
	return g.registered, g.err
}

func (g *fakeGateway) ChatByID(ctx context.Context, jid types.JID) (provider.Chat, error) {
	g.record("chat:" + jid.String())
	if g.err != nil {
		return nil, g.err
	}
	g.chats = append(g.chats, jid)
	g.chat.jid = jid
	g.chat.gw = g
	return g.chat, nil
}

type fakeChat struct {
	gw      *fakeGateway
	jid     types.JID
	id      string
	sendErr error

	media   *media.Media
	text    string
	url     string
	caption string
	preview *media.Media
}

func (c *fakeChat) ID() types.JID { return c.jid }

func (c *fakeChat) SendText(ctx context.Context, body string) (string, error) {
	c.gw.record("text")
	c.text = body
	return c.id, c.sendErr
}

func (c *fakeChat) SendMedia(ctx context.Context, m *media.Media) (string, error) {
	c.gw.record("media")
	c.media = m
	return c.id, c.sendErr
}

func (c *fakeChat) SendLink(ctx context.Context, url, caption string, preview *media.Media) (string, error) {
	c.gw.record("link")
	c.url, c.caption, c.preview = url, caption, preview
	return c.id, c.sendErr
}

func (c *fakeChat) SendStateTyping(ctx context.Context) error {
	c.gw.record("typing")
	return nil
}

func (c *fakeChat) SendStateRecording(ctx context.Context) error {
	c.gw.record("recording")
	return nil
}

func (c *fakeChat) ClearState(ctx context.Context) error {
	c.gw.record("clear")
	return nil
}

package provider

import (
	"context"
	"errors"

	"go.mau.fi/whatsmeow/types"

	"your.org/whatsapp-rest/internal/media"
)

// ErrNotLoggedIn is returned for chat operations while no device is paired.
var ErrNotLoggedIn = errors.New("whatsapp session not logged in")

// EventHandler receives gateway events.  It is called synchronously from
// the gateway's event loop and must not block.
type EventHandler func(evt any)

// Gateway is the WhatsApp session as seen by the rest of the service.
type Gateway interface {
	Subscribe(h EventHandler)
	Logout(ctx context.Context) error
	IsRegisteredUser(ctx context.Context, jid types.JID) (bool, error)
	ChatByID(ctx context.Context, jid types.JID) (Chat, error)
}

// Chat is a handle on a single conversation.  Send methods return the
// WhatsApp message id.
type Chat interface {
	ID() types.JID
	SendText(ctx context.Context, body string) (string, error)
	SendMedia(ctx context.Context, m *media.Media) (string, error)
	// SendLink sends url with a preview card titled caption.  preview may
	// be nil.
	SendLink(ctx context.Context, url, caption string, preview *media.Media) (string, error)
	SendStateTyping(ctx context.Context) error
	SendStateRecording(ctx context.Context) error
	ClearState(ctx context.Context) error
}

// QR carries a new pairing code to be rendered for scanning.
type QR struct {
	Code string
}

// Authenticated is emitted once the session is paired and connected.
type Authenticated struct{}

// Disconnected is emitted when the connection drops.  LoggedOut is set when
// the device was unpaired.
type Disconnected struct {
	LoggedOut bool
}

// Kind classifies an inbound message.
type Kind string

const (
	KindChat   Kind = "chat"
	KindButton Kind = "button"
	KindPTT    Kind = "ptt"
	KindOther  Kind = "other"
)

// InboundMessage is a message received by the session.
type InboundMessage struct {
	ID       string
	Kind     Kind
	From     string
	Body     string
	HasMedia bool

	download func(ctx context.Context) ([]byte, error)
}

// NewInboundMessage builds an InboundMessage.  A non-nil download marks
// the message as carrying media.
func NewInboundMessage(id string, kind Kind, from, body string, download func(ctx context.Context) ([]byte, error)) *InboundMessage {
	return &InboundMessage{
		ID:       id,
		Kind:     kind,
		From:     from,
		Body:     body,
		HasMedia: download != nil,
		download: download,
	}
}

// DownloadMedia fetches and decrypts the attached media.
func (m *InboundMessage) DownloadMedia(ctx context.Context) ([]byte, error) {
	if m.download == nil {
		return nil, errors.New("message has no media")
	}
	return m.download(ctx)
}

package provider

import (
	"context"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"your.org/whatsapp-rest/internal/log"
)

func (c *Client) registerEventHandlers(cli *whatsmeow.Client) {
	cli.AddEventHandler(func(evt interface{}) {
		switch e := evt.(type) {
		case *events.Connected:
			log.Infof("evt=connected")
			c.emit(&Authenticated{})
		case *events.PairSuccess:
			log.Infof("evt=pair_success jid=%s", e.ID.String())
		case *events.LoggedOut:
			log.Infof("evt=logged_out reason=%s", e.Reason.String())
			c.emit(&Disconnected{LoggedOut: true})
			// server side unpair (e.g. removed from the phone)
			c.repair()
		case *events.Disconnected:
			log.Infof("evt=disconnected")
			c.emit(&Disconnected{})
		case *events.StreamReplaced:
			log.Infof("evt=stream_replaced")
			c.emit(&Disconnected{})
		case *events.Message:
			if in := inboundFromEvent(cli, cli.Store.LIDs, e); in != nil {
				c.emit(in)
			}
		}
	})
}

// pnLookup maps hidden (LID) users to their phone number JID.
// store.LIDStore satisfies it.
type pnLookup interface {
	GetPNForLID(ctx context.Context, lid types.JID) (types.JID, error)
}

// inboundFromEvent maps a whatsmeow message to an InboundMessage.  It
// returns nil when the sender's phone number cannot be determined.
func inboundFromEvent(cli *whatsmeow.Client, lids pnLookup, e *events.Message) *InboundMessage {
	from, ok := senderNumber(context.Background(), lids, e.Info.MessageSource)
	if !ok {
		log.WithChat(e.Info.Chat.String()).WithMessageID(e.Info.ID).
			Error("dropping message: no phone number for sender %s", e.Info.Sender)
		return nil
	}
	kind, body := classify(e)
	var download func(ctx context.Context) ([]byte, error)
	if msg := e.Message; msg != nil && hasMedia(msg) {
		download = func(ctx context.Context) ([]byte, error) {
			return cli.DownloadAny(ctx, msg)
		}
	}
	in := NewInboundMessage(e.Info.ID, kind, from, body, download)
	log.WithChat(e.Info.Chat.String()).WithMessageID(e.Info.ID).
		Debug("evt=message kind=%s media=%t", kind, in.HasMedia)
	return in
}

// classify decides the message kind.  Only direct messages from other
// users are ever chat, button or ptt.
func classify(e *events.Message) (Kind, string) {
	msg := e.Message
	if msg == nil || e.Info.IsFromMe || e.Info.IsGroup || isBroadcast(e.Info.Chat) {
		return KindOther, ""
	}
	switch {
	case msg.GetConversation() != "":
		return KindChat, msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return KindChat, msg.GetExtendedTextMessage().GetText()
	case msg.GetButtonsResponseMessage() != nil:
		br := msg.GetButtonsResponseMessage()
		body := br.GetSelectedDisplayText()
		if body == "" {
			body = br.GetSelectedButtonID()
		}
		return KindButton, body
	case msg.GetTemplateButtonReplyMessage() != nil:
		tr := msg.GetTemplateButtonReplyMessage()
		body := tr.GetSelectedDisplayText()
		if body == "" {
			body = tr.GetSelectedID()
		}
		return KindButton, body
	case msg.GetAudioMessage() != nil && msg.GetAudioMessage().GetPTT():
		return KindPTT, ""
	}
	return KindOther, extractAnyCaption(msg)
}

func hasMedia(m *waE2E.Message) bool {
	return m.GetImageMessage() != nil ||
		m.GetAudioMessage() != nil ||
		m.GetVideoMessage() != nil ||
		m.GetDocumentMessage() != nil ||
		m.GetStickerMessage() != nil
}

func isBroadcast(j types.JID) bool {
	return j.Server == types.BroadcastServer || j == types.StatusBroadcastJID
}

// senderNumber returns the phone number digits of the sender.  Hidden
// (LID) senders use the alternate address, then the device's LID map;
// LID digits are never returned as a phone number.
func senderNumber(ctx context.Context, lids pnLookup, src types.MessageSource) (string, bool) {
	s := src.Sender
	if s.Server != types.HiddenUserServer {
		return s.ToNonAD().User, true
	}
	if alt := src.SenderAlt; !alt.IsEmpty() && alt.Server != types.HiddenUserServer {
		return alt.ToNonAD().User, true
	}
	if lids == nil {
		return "", false
	}
	pn, err := lids.GetPNForLID(ctx, s.ToNonAD())
	if err != nil {
		log.Errorf("lid lookup %s: %v", s, err)
		return "", false
	}
	if pn.IsEmpty() {
		return "", false
	}
	return pn.ToNonAD().User, true
}

func extractAnyCaption(m *waE2E.Message) string {
	switch {
	case m.GetImageMessage() != nil:
		return strings.TrimSpace(m.GetImageMessage().GetCaption())
	case m.GetVideoMessage() != nil:
		return strings.TrimSpace(m.GetVideoMessage().GetCaption())
	case m.GetDocumentMessage() != nil:
		return strings.TrimSpace(m.GetDocumentMessage().GetCaption())
	}
	return ""
}

package provider

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	goE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/media"
)

// chat implements Chat on top of a whatsmeow client.
type chat struct {
	cli *whatsmeow.Client
	jid types.JID
}

func (c *chat) ID() types.JID { return c.jid }

func (c *chat) send(ctx context.Context, msg *goE2E.Message, what string) (string, error) {
	entry := log.WithChat(c.jid.String())
	resp, err := c.cli.SendMessage(ctx, c.jid, msg)
	if err != nil {
		entry.Error("send %s failed: %v", what, err)
		return "", fmt.Errorf("send %s: %w", what, err)
	}
	entry.WithMessageID(string(resp.ID)).Info("%s sent", what)
	return string(resp.ID), nil
}

func (c *chat) SendText(ctx context.Context, body string) (string, error) {
	return c.send(ctx, &goE2E.Message{Conversation: proto.String(body)}, "text")
}

// SendMedia uploads m and sends it as an image, voice note/audio or
// document depending on its MIME type.
func (c *chat) SendMedia(ctx context.Context, m *media.Media) (string, error) {
	if m == nil || len(m.Data) == 0 {
		return "", fmt.Errorf("empty media")
	}
	switch m.Kind() {
	case "image":
		uploaded, err := c.cli.Upload(ctx, m.Data, whatsmeow.MediaImage)
		if err != nil {
			return "", fmt.Errorf("image upload: %w", err)
		}
		imgMsg := &goE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(m.Data))),
			Mimetype:      proto.String(m.MimeType),
		}
		if thumb := m.Thumbnail(); len(thumb) > 0 {
			imgMsg.JPEGThumbnail = thumb
		}
		return c.send(ctx, &goE2E.Message{ImageMessage: imgMsg}, "image")

	case "audio":
		uploaded, err := c.cli.Upload(ctx, m.Data, whatsmeow.MediaAudio)
		if err != nil {
			return "", fmt.Errorf("audio upload: %w", err)
		}
		audioMsg := &goE2E.AudioMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(m.Data))),
			Mimetype:      proto.String(m.MimeType),
			PTT:           proto.Bool(m.Voice),
		}
		if m.Seconds > 0 {
			audioMsg.Seconds = proto.Uint32(m.Seconds)
		}
		if len(m.Waveform) > 0 {
			audioMsg.Waveform = m.Waveform
		}
		return c.send(ctx, &goE2E.Message{AudioMessage: audioMsg}, "audio")

	default:
		uploaded, err := c.cli.Upload(ctx, m.Data, whatsmeow.MediaDocument)
		if err != nil {
			return "", fmt.Errorf("document upload: %w", err)
		}
		name := m.FileName
		if name == "" {
			name = "file"
		}
		docMsg := &goE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(m.Data))),
			Mimetype:      proto.String(m.MimeType),
			FileName:      proto.String(name),
		}
		return c.send(ctx, &goE2E.Message{DocumentMessage: docMsg}, "document")
	}
}

func (c *chat) SendLink(ctx context.Context, url, caption string, preview *media.Media) (string, error) {
	return c.send(ctx, &goE2E.Message{ExtendedTextMessage: linkPreview(url, caption, preview)}, "link")
}

// linkPreview builds the text message WhatsApp renders as a preview card.
func linkPreview(url, caption string, preview *media.Media) *goE2E.ExtendedTextMessage {
	ext := &goE2E.ExtendedTextMessage{
		Text:        proto.String(url),
		MatchedText: proto.String(url),
	}
	if caption != "" {
		ext.Title = proto.String(caption)
	}
	if thumb := preview.Thumbnail(); len(thumb) > 0 {
		ext.JPEGThumbnail = thumb
	}
	return ext
}

func (c *chat) SendStateTyping(ctx context.Context) error {
	return c.cli.SendChatPresence(ctx, c.jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

func (c *chat) SendStateRecording(ctx context.Context) error {
	return c.cli.SendChatPresence(ctx, c.jid, types.ChatPresenceComposing, types.ChatPresenceMediaAudio)
}

func (c *chat) ClearState(ctx context.Context) error {
	return c.cli.SendChatPresence(ctx, c.jid, types.ChatPresencePaused, types.ChatPresenceMediaText)
}

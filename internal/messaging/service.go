// Package messaging implements the outbound operations shared by the HTTP
// API and the AMQP consumer.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"

	"your.org/whatsapp-rest/internal/audio"
	"your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/media"
	"your.org/whatsapp-rest/internal/phone"
	"your.org/whatsapp-rest/internal/provider"
	"your.org/whatsapp-rest/internal/session"
)

// ErrPreviewImageRequired is returned by SendLink when no preview image
// URL is given.  It is not a validation error: the route answers 500.
var ErrPreviewImageRequired = errors.New("link preview image url is required")

// Transcoder turns a remote MP3 into a voice note.
type Transcoder interface {
	Convert(ctx context.Context, url string) (*audio.Clip, error)
}

// Options tune a Service.  Zero values are valid.
type Options struct {
	// HTTPClient downloads images and link previews.
	HTTPClient *http.Client
	// Transcoder defaults to an audio.Transcoder using HTTPClient.
	Transcoder Transcoder
	// Resolver, when set, maps numbers to their registered JID.
	Resolver *provider.Resolver
	// Timeout bounds every operation.  Zero means no extra bound.
	Timeout time.Duration
}

type Service struct {
	gw         provider.Gateway
	state      *session.State
	client     *http.Client
	transcoder Transcoder
	resolver   *provider.Resolver
	timeout    time.Duration
}

func New(gw provider.Gateway, state *session.State, opts Options) *Service {
	s := &Service{
		gw:         gw,
		state:      state,
		client:     opts.HTTPClient,
		transcoder: opts.Transcoder,
		resolver:   opts.Resolver,
		timeout:    opts.Timeout,
	}
	if s.transcoder == nil {
		s.transcoder = audio.NewTranscoder(s.client)
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) chatJID(ctx context.Context, number string) types.JID {
	if s.resolver != nil {
		return s.resolver.Resolve(ctx, number)
	}
	return phone.ChatJID(number)
}

func (s *Service) chat(ctx context.Context, number string) (provider.Chat, error) {
	jid := s.chatJID(ctx, number)
	c, err := s.gw.ChatByID(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", jid, err)
	}
	return c, nil
}

// clearState resets the chat presence.  The message is already sent, so
// a failure here is only logged.
func clearState(ctx context.Context, c provider.Chat) {
	if err := c.ClearState(ctx); err != nil {
		log.WithChat(c.ID().String()).Error("clear state failed: %v", err)
	}
}

// SendText shows the typing indicator, sends message and clears the
// indicator.  It returns the new message id.
func (s *Service) SendText(ctx context.Context, number, message string) (string, error) {
	req := Request{Kind: KindText, Number: number, Message: message}
	if err := req.Validate(); err != nil {
		return "", err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := s.chat(ctx, number)
	if err != nil {
		return "", err
	}
	if err := c.SendStateTyping(ctx); err != nil {
		return "", fmt.Errorf("send typing state: %w", err)
	}
	id, err := c.SendText(ctx, message)
	if err != nil {
		return "", err
	}
	clearState(ctx, c)
	return id, nil
}

// SendImage downloads url and sends it as an image.
func (s *Service) SendImage(ctx context.Context, number, url string) error {
	req := Request{Kind: KindImage, Number: number, URL: url}
	if err := req.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := s.chat(ctx, number)
	if err != nil {
		return err
	}
	m, err := media.Fetch(ctx, s.client, strings.TrimSpace(url))
	if err != nil {
		return err
	}
	_, err = c.SendMedia(ctx, m)
	return err
}

// SendAudio transcodes the MP3 at url and sends it as a voice note while
// showing the recording indicator.
func (s *Service) SendAudio(ctx context.Context, number, url string) error {
	req := Request{Kind: KindAudio, Number: number, URL: url}
	if err := req.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := s.chat(ctx, number)
	if err != nil {
		return err
	}
	if err := c.SendStateRecording(ctx); err != nil {
		return fmt.Errorf("send recording state: %w", err)
	}
	clip, err := s.transcoder.Convert(ctx, strings.TrimSpace(url))
	if err != nil {
		return err
	}
	if _, err := c.SendMedia(ctx, clip.Media()); err != nil {
		return err
	}
	clearState(ctx, c)
	return nil
}

// SendLink sends url as a link preview titled caption with the image at
// imageURL as thumbnail.
func (s *Service) SendLink(ctx context.Context, number, url, caption, imageURL string) error {
	req := Request{Kind: KindLink, Number: number, URL: url, Caption: caption, ImageURL: imageURL}
	if err := req.Validate(); err != nil {
		return err
	}
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return ErrPreviewImageRequired
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := s.chat(ctx, number)
	if err != nil {
		return err
	}
	preview, err := media.Fetch(ctx, s.client, imageURL)
	if err != nil {
		return err
	}
	_, err = c.SendLink(ctx, strings.TrimSpace(url), caption, preview)
	return err
}

// ValidNumber reports whether number is registered on WhatsApp.  The
// number is normalised the same way as for sending.
func (s *Service) ValidNumber(ctx context.Context, number string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.gw.IsRegisteredUser(ctx, phone.ChatJID(number))
}

// Logout unpairs the session and marks it disconnected.
func (s *Service) Logout(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.gw.Logout(ctx); err != nil {
		return err
	}
	s.state.SetConnected(false)
	return nil
}

// Dispatch runs req.  The returned id is only set for text messages.
func (s *Service) Dispatch(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	switch req.Kind {
	case KindText:
		return s.SendText(ctx, req.Number, req.Message)
	case KindImage:
		return "", s.SendImage(ctx, req.Number, req.URL)
	case KindAudio:
		return "", s.SendAudio(ctx, req.Number, req.URL)
	default:
		return "", s.SendLink(ctx, req.Number, req.URL, req.Caption, req.ImageURL)
	}
}

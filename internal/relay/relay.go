// Package relay forwards inbound chat messages to external sinks (the
// configured webhook and, optionally, a RabbitMQ exchange).
package relay

import (
	"context"
	"mime"
	"net/http"
	"sync"
	"time"

	"your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/media"
	"your.org/whatsapp-rest/internal/phone"
	"your.org/whatsapp-rest/internal/provider"
)

// Payload is the JSON document delivered for every relayed message.
type Payload struct {
	Phone       string `json:"phone"`
	Message     string `json:"message"`
	Media       bool   `json:"media"`
	Base64Media string `json:"base64media,omitempty"`
	// MediaURL is set when inbound media is archived to object storage.
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Sink receives payloads.  Errors are logged by the relay.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, p *Payload) error
}

// Archive stores inbound media and returns a URL for it.
type Archive interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// Relay turns inbound messages into payloads and fans them out to every
// sink.  Deliveries never block the caller of HandleEvent.
type Relay struct {
	sinks   []Sink
	archive Archive
	timeout time.Duration
	wg      sync.WaitGroup
}

// New returns a Relay delivering to sinks; each delivery, media download
// included, is bounded by timeout.
func New(timeout time.Duration, sinks ...Sink) *Relay {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Relay{sinks: sinks, timeout: timeout}
}

// SetArchive enables archiving of inbound media.
func (r *Relay) SetArchive(a Archive) {
	r.archive = a
}

// Relayable reports whether messages of kind k are forwarded.
func Relayable(k provider.Kind) bool {
	switch k {
	case provider.KindChat, provider.KindButton, provider.KindPTT:
		return true
	}
	return false
}

// HandleEvent relays *provider.InboundMessage events in the background.
// Other events are ignored.
func (r *Relay) HandleEvent(evt any) {
	msg, ok := evt.(*provider.InboundMessage)
	if !ok || !Relayable(msg.Kind) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.Relay(ctx, msg)
	}()
}

// Relay builds the payload for msg and delivers it to every sink.
func (r *Relay) Relay(ctx context.Context, msg *provider.InboundMessage) {
	if !Relayable(msg.Kind) {
		return
	}
	p := r.Build(ctx, msg)
	entry := log.WithChat(p.Phone).WithMessageID(msg.ID)
	for _, s := range r.sinks {
		if err := s.Deliver(ctx, p); err != nil {
			entry.Error("relay to %s failed: %v", s.Name(), err)
			continue
		}
		entry.Debug("relayed to %s", s.Name())
	}
}

// Build creates the payload.  A failed media download still yields a
// payload with Media set and no Base64Media.
func (r *Relay) Build(ctx context.Context, msg *provider.InboundMessage) *Payload {
	p := &Payload{
		Phone:   phone.ToDisplayNumber(msg.From),
		Message: msg.Body,
		Media:   msg.HasMedia,
	}
	if !msg.HasMedia {
		return p
	}
	entry := log.WithChat(p.Phone).WithMessageID(msg.ID)
	data, err := msg.DownloadMedia(ctx)
	if err != nil {
		entry.Error("media download failed: %v", err)
		return p
	}
	if len(data) == 0 {
		entry.Error("media download returned no data")
		return p
	}
	m := &media.Media{MimeType: http.DetectContentType(data), Data: data}
	p.Base64Media = m.Base64()

	if r.archive != nil {
		url, err := r.archive.Upload(ctx, objectName(msg.ID, m.MimeType), m.Data, m.MimeType)
		if err != nil {
			entry.Error("media archive failed: %v", err)
		} else {
			p.MediaURL = url
		}
	}
	return p
}

// Wait blocks until in-flight deliveries finish.
func (r *Relay) Wait() {
	r.wg.Wait()
}

func objectName(id, contentType string) string {
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		ext = exts[0]
	}
	return "inbound/" + id + ext
}

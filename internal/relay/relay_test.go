package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"your.org/whatsapp-rest/internal/provider"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []*Payload
	err  error
	name string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, p *Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, p)
	return s.err
}

func (s *recordingSink) payloads() []*Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Payload(nil), s.got...)
}

func download(data []byte, err error) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) { return data, err }
}

func TestBuildTextMessage(t *testing.T) {
	r := New(time.Second)
	msg := provider.NewInboundMessage("1", provider.KindChat, "551123457765", "Olá", nil)
	p := r.Build(context.Background(), msg)
	if p.Phone != "+5511923457765" || p.Message != "Olá" || p.Media || p.Base64Media != "" {
		t.Fatalf("unexpected payload: %+v", p)
	}
	b, _ := json.Marshal(p)
	if strings.Contains(string(b), "base64media") {
		t.Fatalf("base64media should be omitted: %s", b)
	}
}

func TestBuildWithMedia(t *testing.T) {
	r := New(time.Second)
	msg := provider.NewInboundMessage("2", provider.KindPTT, "5511923457765", "", download([]byte("hello"), nil))
	p := r.Build(context.Background(), msg)
	if !p.Media || p.Base64Media != "aGVsbG8=" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestBuildMediaDownloadFailure(t *testing.T) {
	r := New(time.Second)
	failing := provider.NewInboundMessage("3", provider.KindPTT, "551123457765", "", download(nil, errors.New("gone")))
	p := r.Build(context.Background(), failing)
	if !p.Media || p.Base64Media != "" {
		t.Fatalf("failed download payload: %+v", p)
	}
	empty := provider.NewInboundMessage("4", provider.KindPTT, "551123457765", "", download(nil, nil))
	if p := r.Build(context.Background(), empty); !p.Media || p.Base64Media != "" {
		t.Fatalf("empty download payload: %+v", p)
	}
}

type fakeArchive struct {
	name string
	ct   string
}

func (a *fakeArchive) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	a.name, a.ct = objectName, contentType
	return "https://files.example/" + objectName, nil
}

func TestBuildArchivesMedia(t *testing.T) {
	r := New(time.Second)
	arch := &fakeArchive{}
	r.SetArchive(arch)
	msg := provider.NewInboundMessage("ID5", provider.KindChat, "551123457765", "", download([]byte("plain text"), nil))
	p := r.Build(context.Background(), msg)
	if !strings.HasPrefix(arch.name, "inbound/ID5.") {
		t.Fatalf("object name => %s", arch.name)
	}
	if !strings.HasPrefix(arch.ct, "text/plain") {
		t.Fatalf("content type => %s", arch.ct)
	}
	if p.MediaURL != "https://files.example/"+arch.name {
		t.Fatalf("media url => %s", p.MediaURL)
	}
}

func TestRelayOnlyRelayableKinds(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	r := New(time.Second, sink)

	r.HandleEvent(provider.NewInboundMessage("a", provider.KindOther, "551123457765", "x", nil))
	r.HandleEvent(&provider.Authenticated{})
	r.HandleEvent(provider.NewInboundMessage("b", provider.KindButton, "551123457765", "Sim", nil))
	r.Wait()

	got := sink.payloads()
	if len(got) != 1 || got[0].Message != "Sim" {
		t.Fatalf("relayed => %+v", got)
	}
}

func TestSinksFailIndependently(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("down")}
	good := &recordingSink{name: "good"}
	r := New(time.Second, bad, good)
	r.Relay(context.Background(), provider.NewInboundMessage("c", provider.KindChat, "551123457765", "oi", nil))
	if len(good.payloads()) != 1 {
		t.Fatal("second sink should still receive the payload")
	}
}

func TestWebhookDeliver(t *testing.T) {
	var body map[string]any
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second)
	err := wh.Deliver(context.Background(), &Payload{Phone: "+5511923457765", Message: "oi", Media: true, Base64Media: "AAA="})
	if err != nil {
		t.Fatalf("Deliver() error: %v", err)
	}
	if contentType != "application/json" {
		t.Fatalf("content type => %s", contentType)
	}
	if body["phone"] != "+5511923457765" || body["message"] != "oi" || body["media"] != true || body["base64media"] != "AAA=" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestWebhookNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Deliver(context.Background(), &Payload{})
	if err == nil || !strings.Contains(err.Error(), "status=502") {
		t.Fatalf("expected non-2xx error, got %v", err)
	}
}

func TestRelayEndToEndWebhook(t *testing.T) {
	got := make(chan Payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		got <- p
	}))
	defer srv.Close()

	r := New(time.Second, NewWebhook(srv.URL, time.Second))
	r.HandleEvent(provider.NewInboundMessage("d", provider.KindChat, "551123457765", "Olá", nil))
	r.Wait()

	select {
	case p := <-got:
		if p.Phone != "+5511923457765" || p.Message != "Olá" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	default:
		t.Fatal("webhook not called")
	}
}

package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"your.org/whatsapp-rest/internal/media"
)

func userJID(u string) types.JID { return types.NewJID(u, types.DefaultUserServer) }

func msgEvent(msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   userJID("551123457765"),
				Sender: userJID("551123457765"),
			},
			ID: "ABC",
		},
		Message: msg,
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		msg      *waE2E.Message
		wantKind Kind
		wantBody string
	}{
		{"conversation", &waE2E.Message{Conversation: proto.String("oi")}, KindChat, "oi"},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("olá")}}, KindChat, "olá"},
		{"button", &waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{
			SelectedButtonID: proto.String("b1"),
			Response:         &waE2E.ButtonsResponseMessage_SelectedDisplayText{SelectedDisplayText: "Sim"},
		}}, KindButton, "Sim"},
		{"template button", &waE2E.Message{TemplateButtonReplyMessage: &waE2E.TemplateButtonReplyMessage{
			SelectedID:          proto.String("t1"),
			SelectedDisplayText: proto.String("Não"),
		}}, KindButton, "Não"},
		{"ptt", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{PTT: proto.Bool(true)}}, KindPTT, ""},
		{"plain audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{PTT: proto.Bool(false)}}, KindOther, ""},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String(" foto ")}}, KindOther, "foto"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			kind, body := classify(msgEvent(c.msg))
			if kind != c.wantKind || body != c.wantBody {
				t.Fatalf("classify => (%s, %q), want (%s, %q)", kind, body, c.wantKind, c.wantBody)
			}
		})
	}
}

func TestClassifyIgnoresSelfGroupsAndStatus(t *testing.T) {
	text := &waE2E.Message{Conversation: proto.String("oi")}

	self := msgEvent(text)
	self.Info.IsFromMe = true
	if k, _ := classify(self); k != KindOther {
		t.Fatalf("own message => %s", k)
	}

	group := msgEvent(text)
	group.Info.IsGroup = true
	group.Info.Chat = types.NewJID("123-456", types.GroupServer)
	if k, _ := classify(group); k != KindOther {
		t.Fatalf("group message => %s", k)
	}

	status := msgEvent(text)
	status.Info.Chat = types.StatusBroadcastJID
	if k, _ := classify(status); k != KindOther {
		t.Fatalf("status message => %s", k)
	}
}

type fakeLIDs map[string]types.JID

func (f fakeLIDs) GetPNForLID(ctx context.Context, lid types.JID) (types.JID, error) {
	if pn, ok := f[lid.User]; ok {
		return pn, nil
	}
	return types.JID{}, nil
}

func TestSenderNumber(t *testing.T) {
	ctx := context.Background()
	src := types.MessageSource{Sender: types.JID{User: "551123457765", Device: 3, Server: types.DefaultUserServer}}
	if got, ok := senderNumber(ctx, nil, src); !ok || got != "551123457765" {
		t.Fatalf("device sender => %s %t", got, ok)
	}
	lid := types.MessageSource{
		Sender:    types.NewJID("987654321", types.HiddenUserServer),
		SenderAlt: userJID("5511923457765"),
	}
	if got, ok := senderNumber(ctx, nil, lid); !ok || got != "5511923457765" {
		t.Fatalf("lid sender => %s %t", got, ok)
	}
}

func TestSenderNumberLIDLookup(t *testing.T) {
	ctx := context.Background()
	src := types.MessageSource{Sender: types.NewJID("987654321", types.HiddenUserServer)}
	lids := fakeLIDs{"987654321": userJID("5511923457765")}
	if got, ok := senderNumber(ctx, lids, src); !ok || got != "5511923457765" {
		t.Fatalf("mapped lid => %s %t", got, ok)
	}
	if got, ok := senderNumber(ctx, fakeLIDs{}, src); ok {
		t.Fatalf("unmapped lid should not resolve, got %s", got)
	}
	if got, ok := senderNumber(ctx, nil, src); ok {
		t.Fatalf("lid without store should not resolve, got %s", got)
	}
}

func TestInboundFromEventUnknownLIDDropped(t *testing.T) {
	e := msgEvent(&waE2E.Message{Conversation: proto.String("oi")})
	e.Info.Sender = types.NewJID("987654321", types.HiddenUserServer)
	if in := inboundFromEvent(nil, fakeLIDs{}, e); in != nil {
		t.Fatalf("expected message to be dropped, got %+v", in)
	}
}

func TestInboundFromEventMedia(t *testing.T) {
	in := inboundFromEvent(nil, nil, msgEvent(&waE2E.Message{AudioMessage: &waE2E.AudioMessage{PTT: proto.Bool(true)}}))
	if in.Kind != KindPTT || !in.HasMedia || in.From != "551123457765" || in.ID != "ABC" {
		t.Fatalf("unexpected inbound: %+v", in)
	}
	text := inboundFromEvent(nil, nil, msgEvent(&waE2E.Message{Conversation: proto.String("oi")}))
	if text.HasMedia {
		t.Fatal("text should carry no media")
	}
	if _, err := text.DownloadMedia(context.Background()); err == nil {
		t.Fatal("expected error downloading from a text message")
	}
}

func TestLinkPreview(t *testing.T) {
	ext := linkPreview("https://example.com", "Exemplo", nil)
	if ext.GetText() != "https://example.com" || ext.GetMatchedText() != "https://example.com" {
		t.Fatalf("unexpected text: %+v", ext)
	}
	if ext.GetTitle() != "Exemplo" {
		t.Fatalf("title => %q", ext.GetTitle())
	}
	if len(ext.GetJPEGThumbnail()) != 0 {
		t.Fatal("no preview should mean no thumbnail")
	}
	bad := linkPreview("https://example.com", "", &media.Media{MimeType: "image/png", Data: []byte("nope")})
	if bad.Title != nil || len(bad.GetJPEGThumbnail()) != 0 {
		t.Fatalf("unexpected preview fields: %+v", bad)
	}
}

type fakeRegistrar struct {
	registered map[string]bool
	err        error
	calls      int
}

func (f *fakeRegistrar) IsRegisteredUser(ctx context.Context, jid types.JID) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.registered[jid.User], nil
}

func TestResolverPrefersRegisteredCandidate(t *testing.T) {
	reg := &fakeRegistrar{registered: map[string]bool{"5511923457765": true}}
	r := NewResolver(reg, time.Hour)

	got := r.Resolve(context.Background(), "+55 11 92345-7765")
	if got.User != "5511923457765" {
		t.Fatalf("resolved => %s", got)
	}
	calls := reg.calls
	if again := r.Resolve(context.Background(), "5511923457765"); again.User != "5511923457765" {
		t.Fatalf("cached => %s", again)
	}
	if reg.calls != calls {
		t.Fatalf("expected cache hit, registrar called %d more times", reg.calls-calls)
	}
}

func TestResolverFallsBackToChatJID(t *testing.T) {
	r := NewResolver(&fakeRegistrar{err: errors.New("boom")}, time.Hour)
	if got := r.Resolve(context.Background(), "5511923457765"); got.User != "551123457765" {
		t.Fatalf("fallback => %s", got)
	}
	none := NewResolver(&fakeRegistrar{registered: map[string]bool{}}, 0)
	if got := none.Resolve(context.Background(), "5511923457765"); got.User != "551123457765" {
		t.Fatalf("unregistered fallback => %s", got)
	}
}

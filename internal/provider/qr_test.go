package provider

import (
	"testing"

	"go.mau.fi/whatsmeow"
)

func feedQR(items ...whatsmeow.QRChannelItem) <-chan whatsmeow.QRChannelItem {
	ch := make(chan whatsmeow.QRChannelItem, len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return ch
}

func TestDrainQRSuccess(t *testing.T) {
	var codes []string
	emit := func(evt any) {
		if qr, ok := evt.(*QR); ok {
			codes = append(codes, qr.Code)
		}
	}
	ch := feedQR(
		whatsmeow.QRChannelItem{Event: whatsmeow.QRChannelEventCode, Code: "c1"},
		whatsmeow.QRChannelItem{Event: whatsmeow.QRChannelEventCode, Code: "c2"},
		whatsmeow.QRChannelSuccess,
	)
	if !drainQR(ch, emit) {
		t.Fatal("expected paired")
	}
	if len(codes) != 2 || codes[0] != "c1" || codes[1] != "c2" {
		t.Fatalf("codes => %v", codes)
	}
}

func TestDrainQRTerminalEventsRestartPairing(t *testing.T) {
	cases := map[string]whatsmeow.QRChannelItem{
		"timeout":          whatsmeow.QRChannelTimeout,
		"client outdated":  whatsmeow.QRChannelClientOutdated,
		"no multidevice":   whatsmeow.QRChannelScannedWithoutMultidevice,
		"unexpected event": whatsmeow.QRChannelErrUnexpectedEvent,
		"error":            {Event: whatsmeow.QRChannelEventError},
	}
	for name, last := range cases {
		ch := feedQR(whatsmeow.QRChannelItem{Event: whatsmeow.QRChannelEventCode, Code: "c1"}, last)
		if drainQR(ch, func(any) {}) {
			t.Fatalf("%s: expected a failed cycle", name)
		}
	}
	if drainQR(feedQR(), func(any) {}) {
		t.Fatal("closed channel without events should be a failed cycle")
	}
}

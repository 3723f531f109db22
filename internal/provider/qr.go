package provider

import (
	"go.mau.fi/whatsmeow"

	"your.org/whatsapp-rest/internal/log"
)

// startQRWatcher deve ser chamado ANTES de Connect(); ele escuta o canal de QR
// do whatsmeow e repassa cada código como evento *QR.  Se o canal fechar sem
// pareamento, um novo ciclo começa para que /qr nunca fique parado.
func (c *Client) startQRWatcher(cli *whatsmeow.Client, ch <-chan whatsmeow.QRChannelItem) {
	go func() {
		if drainQR(ch, c.emit) {
			return
		}
		// a newer client already took over
		if c.current() != cli {
			return
		}
		c.repair()
	}()
}

// drainQR forwards codes from ch until it closes and reports whether the
// pairing succeeded.  Every other terminal event (timeout, error, client
// outdated, scanned without multidevice) counts as a failed cycle.
func drainQR(ch <-chan whatsmeow.QRChannelItem, emit func(evt any)) bool {
	paired := false
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			emit(&QR{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			log.Infof("qr pairing succeeded")
			paired = true
		case whatsmeow.QRChannelTimeout.Event:
			log.Infof("qr pairing timed out")
		case whatsmeow.QRChannelEventError:
			log.Errorf("qr pairing error: %v", item.Error)
		default:
			log.Errorf("qr channel ended with event=%s", item.Event)
		}
	}
	return paired
}

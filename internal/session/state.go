// Package session keeps the process wide view of the WhatsApp session:
// the latest pairing QR code and whether the session is connected.
package session

import (
	"fmt"
	"sync"

	"github.com/skip2/go-qrcode"
	"github.com/vincent-petithory/dataurl"

	"your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/provider"
)

// qrSize is the PNG edge length in pixels.
const qrSize = 256

// Snapshot is a point in time copy of State.
type Snapshot struct {
	QRCodeDataURL string
	HasQR         bool
	Connected     bool
}

// State is safe for concurrent use.  It is written by gateway events and
// by a successful logout, and read by the HTTP handlers.
type State struct {
	mu        sync.RWMutex
	qr        string
	hasQR     bool
	connected bool

	omu       sync.RWMutex
	observers []func(Snapshot)
}

// New returns a disconnected State with no QR code.
func New() *State {
	return &State{}
}

// OnChange registers fn to be called with every new snapshot.
func (s *State) OnChange(fn func(Snapshot)) {
	s.omu.Lock()
	s.observers = append(s.observers, fn)
	s.omu.Unlock()
}

// QRCodeDataURL returns the latest QR code as a data: URL.
func (s *State) QRCodeDataURL() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qr, s.hasQR
}

func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{QRCodeDataURL: s.qr, HasQR: s.hasQR, Connected: s.connected}
}

// SetQRCodeDataURL replaces the current QR code.
func (s *State) SetQRCodeDataURL(u string) {
	s.update(func() {
		s.qr, s.hasQR = u, true
	})
}

func (s *State) SetConnected(connected bool) {
	s.update(func() {
		s.connected = connected
		if connected {
			s.qr, s.hasQR = "", false
		}
	})
}

func (s *State) update(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.omu.RLock()
	obs := s.observers
	s.omu.RUnlock()
	for _, o := range obs {
		o(snap)
	}
}

// HandleEvent applies a gateway event.  It has the provider.EventHandler
// signature so it can be passed straight to Subscribe.
func (s *State) HandleEvent(evt any) {
	switch e := evt.(type) {
	case *provider.QR:
		u, err := RenderQR(e.Code)
		if err != nil {
			log.Errorf("render qr: %v", err)
			return
		}
		s.SetQRCodeDataURL(u)
		log.Infof("qr code updated")
	case *provider.Authenticated:
		s.SetConnected(true)
		log.Infof("session authenticated")
	case *provider.Disconnected:
		s.SetConnected(false)
		log.Infof("session disconnected logged_out=%t", e.LoggedOut)
	}
}

// RenderQR encodes code as a PNG QR image wrapped in a data: URL.
func RenderQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("qrcode encode: %w", err)
	}
	return dataurl.New(png, "image/png").String(), nil
}

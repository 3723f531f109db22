package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"your.org/whatsapp-rest/internal/log"
)

// delay before a new pairing cycle starts after a QR timeout or logout
var repairDelay = 2 * time.Second

// Client is the whatsmeow backed Gateway.  It owns a single device; after
// a logout a fresh device is paired so the process keeps serving.
type Client struct {
	mu        sync.RWMutex
	cli       *whatsmeow.Client
	container *sqlstore.Container

	hmu      sync.RWMutex
	handlers []EventHandler

	ctx    context.Context
	cancel context.CancelFunc
}

var _ Gateway = (*Client)(nil)

// New opens (or creates) the device store in storeDir/session.db.
func New(ctx context.Context, storeDir string) (*Client, error) {
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir session dir: %w", err)
	}
	dbPath := filepath.Join(storeDir, "session.db")

	// PRAGMAs para reduzir SQLITE_BUSY e melhorar concorrência
	dsn := fmt.Sprintf(
		"file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		dbPath,
	)
	container, err := sqlstore.New(ctx, "sqlite", dsn, log.WA("Database"))
	if err != nil {
		return nil, fmt.Errorf("sqlstore.New: %w", err)
	}
	store.DeviceProps.Os = proto.String("whatsapp-rest")
	return &Client{container: container}, nil
}

// Subscribe registers h for all gateway events.  Handlers registered
// before Start see the first QR code.
func (c *Client) Subscribe(h EventHandler) {
	c.hmu.Lock()
	c.handlers = append(c.handlers, h)
	c.hmu.Unlock()
}

func (c *Client) emit(evt any) {
	c.hmu.RLock()
	hs := c.handlers
	c.hmu.RUnlock()
	for _, h := range hs {
		h(evt)
	}
}

// Start connects the stored device, or begins pairing when there is none.
// ctx bounds the lifetime of the session, not just the call.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	device, err := c.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get first device: %w", err)
	}
	return c.connect(device)
}

// Stop disconnects the session.
func (c *Client) Stop() {
	c.mu.Lock()
	cli, cancel := c.cli, c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if cli != nil {
		cli.Disconnect()
	}
}

func (c *Client) connect(device *store.Device) error {
	cli := whatsmeow.NewClient(device, log.WA("Client"))
	cli.EnableAutoReconnect = true
	cli.AutoTrustIdentity = true
	c.registerEventHandlers(cli)

	c.mu.Lock()
	old := c.cli
	c.cli = cli
	ctx := c.ctx
	c.mu.Unlock()
	if old != nil && old != cli {
		old.Disconnect()
	}

	// Ainda não pareado: abre canal de QR ANTES do Connect
	if cli.Store.ID == nil {
		qrCh, err := cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get QR channel: %w", err)
		}
		c.startQRWatcher(cli, qrCh)
	}

	go func() {
		if err := cli.Connect(); err != nil {
			log.Errorf("connect error: %v", err)
		}
	}()
	return nil
}

// repair starts a new pairing cycle with a fresh device.
func (c *Client) repair() {
	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()
	if ctx == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(repairDelay):
		}
		log.Infof("starting new pairing cycle")
		if err := c.connect(c.container.NewDevice()); err != nil {
			log.Errorf("pairing restart failed: %v", err)
		}
	}()
}

func (c *Client) current() *whatsmeow.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cli
}

// Logout unpairs the device and starts a new pairing cycle.
func (c *Client) Logout(ctx context.Context) error {
	cli := c.current()
	if cli == nil || !cli.IsLoggedIn() {
		return ErrNotLoggedIn
	}
	if err := cli.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.repair()
	return nil
}

// IsRegisteredUser reports whether jid has a WhatsApp account.
func (c *Client) IsRegisteredUser(ctx context.Context, jid types.JID) (bool, error) {
	cli := c.current()
	if cli == nil || !cli.IsLoggedIn() {
		return false, ErrNotLoggedIn
	}
	res, err := cli.IsOnWhatsApp(ctx, []string{"+" + jid.User})
	if err != nil {
		return false, fmt.Errorf("is on whatsapp: %w", err)
	}
	for _, r := range res {
		if r.IsIn {
			return true, nil
		}
	}
	return false, nil
}

// ChatByID returns a handle for jid.  No round trip is made; WhatsApp
// creates the chat on first message.
func (c *Client) ChatByID(ctx context.Context, jid types.JID) (Chat, error) {
	cli := c.current()
	if cli == nil || !cli.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	if strings.TrimSpace(jid.User) == "" {
		return nil, fmt.Errorf("invalid chat id %q", jid.String())
	}
	return &chat{cli: cli, jid: jid}, nil
}

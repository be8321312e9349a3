// Package wa manages the WhatsApp protocol session and its inbound
// message pipeline.
//
// One Manager owns the single live whatsmeow client handle per process.
// External callers go through Start/Stop/Send/ClearSession; everything
// else is driven by protocol events.
package wa

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/perdanaw/wagate/internal/bus"
	. "github.com/perdanaw/wagate/internal/logging"
	"github.com/perdanaw/wagate/internal/session"
)

const (
	// Fixed reconnect delay after an unexpected close. No backoff, no
	// retry ceiling; reconnection only stops on logout or explicit stop.
	reconnectDelay = 3 * time.Second

	// Grace period between stopping the client and deleting the
	// credential directory, to let the OS release the sqlite handles.
	// A heuristic wait, not a synchronization point.
	clearGrace = 2 * time.Second
)

// wagateLogger bridges whatsmeow's waLog.Logger to our L_* functions
type wagateLogger struct {
	module string
}

func (l *wagateLogger) Debugf(msg string, args ...interface{}) {
	L_debug(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *wagateLogger) Infof(msg string, args ...interface{}) {
	L_debug(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *wagateLogger) Warnf(msg string, args ...interface{}) {
	L_warn(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *wagateLogger) Errorf(msg string, args ...interface{}) {
	L_error(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *wagateLogger) Sub(module string) waLog.Logger {
	return &wagateLogger{module: l.module + "/" + module}
}

// Status is the external view of the connection, shaped for the API layer.
type Status struct {
	IsReady   bool `json:"isReady"`
	HasClient bool `json:"hasClient"`
}

// Manager runs the connect/pair/open/close/reconnect state machine over
// the single protocol client handle. The handle is never exposed.
type Manager struct {
	store  *session.Store
	router *Router

	mu         sync.Mutex
	state      State
	client     *whatsmeow.Client
	db         *sql.DB
	cancel     context.CancelFunc
	ctx        context.Context
	explicitly bool // stop requested by the caller; suppresses reconnect

	retryDelay time.Duration
	grace      time.Duration
}

// NewManager creates the connection manager over a credential store.
func NewManager(store *session.Store) *Manager {
	return &Manager{
		store:      store,
		state:      StateDisconnected,
		retryDelay: reconnectDelay,
		grace:      clearGrace,
	}
}

// SetRouter attaches the inbound pipeline. Must be called before Start.
func (m *Manager) SetRouter(r *Router) {
	m.router = r
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status reports readiness for the control surface.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		IsReady:   m.state == StateOpen,
		HasClient: m.client != nil,
	}
}

// Start opens a new protocol session. A no-op unless currently
// Disconnected. Returns once the handle is created and connecting;
// the rest of the lifecycle (pairing, open, reconnect) is event-driven.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		L_debug("wa: start ignored", "state", m.state.String())
		return nil
	}
	m.state = StateConnecting
	m.explicitly = false
	m.mu.Unlock()

	if err := m.connect(); err != nil {
		m.mu.Lock()
		m.teardownLocked()
		m.state = StateDisconnected
		m.mu.Unlock()

		L_error("wa: initialization failed", "error", err)
		bus.Publish(bus.TopicError, bus.PayloadError{
			Context: "Failed to initialize WhatsApp client",
			Detail:  err.Error(),
		})
		return err
	}
	return nil
}

// connect builds the device store and client and initiates the handshake.
func (m *Manager) connect() error {
	if err := m.store.Ensure(); err != nil {
		return err
	}

	dbPath := filepath.Join(m.store.Path(), "wagate.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("wa: open device store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	container := sqlstore.NewWithDB(db, "sqlite3", &wagateLogger{module: "store"})
	if err := container.Upgrade(ctx); err != nil {
		cancel()
		db.Close()
		return fmt.Errorf("wa: upgrade device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		cancel()
		db.Close()
		return fmt.Errorf("wa: get device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	client := whatsmeow.NewClient(device, &wagateLogger{module: "client"})
	// The state machine owns reconnection; see scheduleReconnect.
	client.EnableAutoReconnect = false
	client.AddEventHandler(m.handleEvent)

	m.mu.Lock()
	m.client = client
	m.db = db
	m.ctx = ctx
	m.cancel = cancel
	m.mu.Unlock()

	// The credential bundle is written through the device store: whatsmeow
	// persists rotated keys synchronously before acknowledging protocol
	// traffic, so a crash never loses a rotation.
	if client.Store.ID == nil {
		return m.connectWithPairing(ctx, client)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("wa: connect: %w", err)
	}
	L_info("wa: connecting", "jid", client.Store.ID.String())
	return nil
}

// connectWithPairing runs the QR pairing flow for an unpaired device.
// The QR channel must be consumed for the handshake to proceed; each code
// is rendered in the terminal and published to observers.
func (m *Manager) connectWithPairing(ctx context.Context, client *whatsmeow.Client) error {
	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("wa: qr channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("wa: connect: %w", err)
	}

	m.mu.Lock()
	m.state = StateAwaitingPairing
	m.mu.Unlock()
	L_info("wa: not paired, waiting for QR scan")

	go func() {
		for item := range qrChan {
			switch item.Event {
			case "code":
				L_info("wa: QR code received, scan with your phone")
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
				bus.Publish(bus.TopicPairingCode, bus.PayloadPairingCode{Code: item.Code})
			case "success":
				L_info("wa: QR scan accepted, completing handshake")
				// events.Connected will flip the state to Open.
			case "timeout":
				L_warn("wa: QR code expired")
				m.handleClosed("pairing timeout", false)
				return
			default:
				L_error("wa: pairing failed", "event", item.Event)
				m.handleClosed("pairing failed: "+item.Event, false)
				return
			}
		}
	}()
	return nil
}

// Stop terminates the session and releases the handle. Idempotent;
// returns only after teardown completes. Never schedules a reconnect.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.client == nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosing
	m.explicitly = true
	client := m.client
	m.mu.Unlock()

	L_info("wa: stopping client")
	client.Disconnect()

	m.mu.Lock()
	m.teardownLocked()
	m.state = StateDisconnected
	m.mu.Unlock()

	bus.Publish(bus.TopicConnectionLost, bus.PayloadConnectionLost{
		Reason:    "stopped",
		WillRetry: false,
	})
	L_info("wa: client stopped")
	return nil
}

// teardownLocked releases the handle and its resources. Caller holds mu.
func (m *Manager) teardownLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.db != nil {
		m.db.Close()
		m.db = nil
	}
	m.client = nil
	m.ctx = nil
}

// Send delivers a text message. Fails with ErrNotReady outside Open.
// Bare phone numbers are normalized to user JIDs. The text goes through
// the same outbound shaping as auto-replies, and a successful delivery
// is reported on the bus.
func (m *Manager) Send(to, text string) error {
	m.mu.Lock()
	if m.state != StateOpen || m.client == nil {
		m.mu.Unlock()
		return ErrNotReady
	}
	client := m.client
	ctx := m.ctx
	m.mu.Unlock()

	jid, err := toJID(to)
	if err != nil {
		return fmt.Errorf("wa: invalid recipient %q: %w", to, err)
	}

	out := shapeOutbound(text)
	_, err = client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(out),
	})
	if err != nil {
		return fmt.Errorf("wa: send: %w", err)
	}

	bus.Publish(bus.TopicMessageSent, bus.PayloadMessageSent{
		ChatID: to,
		Text:   out,
	})
	return nil
}

// SetTyping toggles the composing indicator for a chat. Best effort.
func (m *Manager) SetTyping(chatID string, typing bool) {
	m.mu.Lock()
	client := m.client
	ctx := m.ctx
	open := m.state == StateOpen
	m.mu.Unlock()
	if client == nil || !open {
		return
	}

	jid, err := toJID(chatID)
	if err != nil {
		return
	}
	presence := types.ChatPresencePaused
	if typing {
		presence = types.ChatPresenceComposing
	}
	_ = client.SendChatPresence(ctx, jid, presence, types.ChatPresenceMediaText)
}

// Chats returns the chat list. The protocol client does not expose one,
// so this is always empty when connected (a limitation, not a defect).
func (m *Manager) Chats() ([]string, error) {
	if m.State() != StateOpen {
		return nil, ErrNotReady
	}
	return []string{}, nil
}

// ClearSession stops the client if active, waits a grace period for file
// handles to release, then deletes the credential bundle. Always emits a
// session-cleared notification with the outcome.
func (m *Manager) ClearSession() (bool, string) {
	if m.State() != StateDisconnected {
		L_info("wa: stopping client before session clear")
		if err := m.Stop(); err != nil {
			L_error("wa: stop before clear failed", "error", err)
		}
		time.Sleep(m.grace)
	}

	existed := m.store.Exists()
	if err := m.store.Clear(); err != nil {
		L_error("wa: session clear failed", "error", err)
		bus.Publish(bus.TopicSessionCleared, bus.PayloadSessionCleared{
			Success: false,
			Message: err.Error(),
		})
		return false, err.Error()
	}

	msg := "Session cleared successfully"
	if !existed {
		msg = "No session found to clear"
	}
	L_info("wa: session cleared", "existed", existed)
	bus.Publish(bus.TopicSessionCleared, bus.PayloadSessionCleared{
		Success: true,
		Message: msg,
	})
	return true, msg
}

// handleEvent is the whatsmeow event handler: one state-machine reaction
// per event type.
func (m *Manager) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		m.mu.Lock()
		m.state = StateOpen
		m.mu.Unlock()
		L_info("wa: connection open")
		bus.Publish(bus.TopicConnectionReady, nil)

	case *events.PairSuccess:
		L_info("wa: paired", "jid", v.ID.String())

	case *events.Disconnected:
		m.handleClosed("connection closed", false)

	case *events.LoggedOut:
		L_warn("wa: logged out by remote", "reason", v.Reason)
		m.handleClosed(fmt.Sprintf("logged out: %v", v.Reason), true)

	case *events.Message:
		m.handleInbound(v)
	}
}

// handleClosed reacts to an unexpected close: tear down the handle,
// notify observers and, unless the close is terminal, schedule exactly
// one reconnect attempt after the fixed delay.
func (m *Manager) handleClosed(reason string, loggedOut bool) {
	m.mu.Lock()
	if m.state == StateClosing || m.state == StateDisconnected {
		// Explicit Stop owns this teardown.
		m.mu.Unlock()
		return
	}
	explicit := m.explicitly
	m.teardownLocked()
	m.state = StateDisconnected
	m.mu.Unlock()

	retry := willRetry(loggedOut, explicit) && !IsShuttingDown()
	L_warn("wa: connection lost", "reason", reason, "willRetry", retry)
	bus.Publish(bus.TopicConnectionLost, bus.PayloadConnectionLost{
		Reason:    reason,
		WillRetry: retry,
	})

	if retry {
		time.AfterFunc(m.retryDelay, func() {
			if IsShuttingDown() {
				return
			}
			L_info("wa: reconnecting")
			if err := m.Start(); err != nil {
				L_error("wa: reconnect failed", "error", err)
			}
		})
	}
}

// handleInbound filters a raw message event and forwards it to the
// router. Self-originated messages and payload-less events are dropped.
// Each message is routed on its own goroutine; there is no per-chat
// queuing, so concurrent AI calls may interleave sends.
//
// Dispatch runs on its own context, not the client lifecycle context:
// a stop must not abort an AI call already in flight. The completed
// reply then fails not-ready at the send instead.
func (m *Manager) handleInbound(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Message == nil {
		return
	}
	if m.router == nil {
		return
	}

	chatID := evt.Info.Chat.String()
	msg := InboundMessage{
		ChatID:     chatID,
		SenderID:   evt.Info.Sender.ToNonAD().String(),
		IsGroup:    isGroupChat(chatID),
		Text:       extractText(evt.Message),
		ReceivedAt: evt.Info.Timestamp,
	}

	go m.router.Route(context.Background(), msg)
}

// toJID converts a recipient to a JID, appending the default user server
// to bare phone numbers.
func toJID(to string) (types.JID, error) {
	if !strings.ContainsRune(to, '@') {
		return types.NewJID(to, types.DefaultUserServer), nil
	}
	return types.ParseJID(to)
}

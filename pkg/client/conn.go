// Package client implements the session synchronization engine: one logical
// connection per shared whiteboard session, a typed message router, the
// local object store and the reconciliation rules that keep it convergent
// with every other participant.
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/config"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/transport"
)

// ConnState is the lifecycle state of the managed connection.
//
//	idle -> connecting -> open (-> reconnecting -> connecting)* -> closed | gave-up
//
// Send succeeds only in StateOpen. StateClosed and StateGaveUp are terminal
// for the current attempt sequence; a later Open starts a fresh one.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
	StateGaveUp
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateGaveUp:
		return "gave-up"
	default:
		return "unknown"
	}
}

// Link is the slice of transport.Connection the manager depends on.
type Link interface {
	OnMessage(transport.MessageHandler)
	OnClose(transport.CloseHandler)
	Run()
	Send(msg []byte) bool
	Close(err error)
}

// DialFunc opens a transport link to the session endpoint.
type DialFunc func(ctx context.Context, sessionID string) (Link, error)

// WebsocketDialer adapts transport.Dial to a DialFunc.
func WebsocketDialer(baseURL string, tcfg transport.Config, logger *slog.Logger) DialFunc {
	return func(ctx context.Context, sessionID string) (Link, error) {
		return transport.Dial(ctx, baseURL, sessionID, tcfg, logger)
	}
}

// ConnManager owns the single logical connection for one session. It never
// queues outbound messages and never reconnects after an intentional Close.
type ConnManager struct {
	logger    *slog.Logger
	sessionID string
	dial      DialFunc
	cfg       config.ClientConfig

	onMessage transport.MessageHandler
	onState   func(ConnState)

	mu          sync.Mutex
	state       ConnState
	link        Link
	gen         int // dial generation; stale close callbacks are ignored
	retry       backoff.BackOff
	retryTimer  *time.Timer
	intentional bool
	ctx         context.Context
}

func NewConnManager(cfg config.ClientConfig, sessionID string, dial DialFunc, logger *slog.Logger) *ConnManager {
	return &ConnManager{
		logger: logger.With(
			slog.String("component", "conn_manager"),
			slog.String("sessionID", sessionID),
		),
		sessionID: sessionID,
		dial:      dial,
		cfg:       cfg,
		state:     StateIdle,
	}
}

// SetOnMessage installs the inbound message handler. Must be called before Open.
func (m *ConnManager) SetOnMessage(h transport.MessageHandler) { m.onMessage = h }

// SetOnState installs the connectivity-status callback. Must be called before Open.
func (m *ConnManager) SetOnState(h func(ConnState)) { m.onState = h }

func (m *ConnManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open starts connecting in the background. Calling Open while the manager
// is already connecting, open or reconnecting reuses the in-flight
// connection; calling it on a terminal handle starts a fresh attempt
// sequence with a reset retry budget.
func (m *ConnManager) Open(ctx context.Context) {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateOpen, StateReconnecting:
		m.mu.Unlock()
		return
	}
	m.intentional = false
	m.ctx = ctx
	m.retry = backoff.WithMaxRetries(
		backoff.NewConstantBackOff(m.cfg.ReconnectDelay),
		uint64(m.cfg.MaxReconnectAttempts),
	)
	m.retry.Reset()
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyState(StateConnecting)
	go m.connect(ctx, gen)
}

func (m *ConnManager) connect(ctx context.Context, gen int) {
	link, err := m.dial(ctx, m.sessionID)

	m.mu.Lock()
	if gen != m.gen || m.intentional {
		m.mu.Unlock()
		if err == nil {
			link.Close(nil)
		}
		return
	}
	if err != nil {
		m.logger.Warn("connect attempt failed", slog.Any("error", err))
		m.scheduleReconnectLocked()
		return
	}

	m.link = link
	link.OnMessage(m.onMessage)
	link.OnClose(func(_ uuid.UUID, status websocket.StatusCode, cause error) {
		m.handleClose(gen, status, cause)
	})
	m.state = StateOpen
	m.retry.Reset()
	m.mu.Unlock()

	m.logger.Info("session connection open")
	m.notifyState(StateOpen)
	link.Run()
}

// handleClose reacts to the transport going away. Intentional closes stay
// closed; non-retryable statuses are immediately terminal; everything else
// consumes one reconnect attempt.
func (m *ConnManager) handleClose(gen int, status websocket.StatusCode, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.link = nil

	if m.intentional {
		already := m.state == StateClosed
		m.state = StateClosed
		m.mu.Unlock()
		if !already {
			m.notifyState(StateClosed)
		}
		return
	}
	if nonRetryable(status) {
		m.logger.Error("connection closed with non-retryable status",
			slog.Int("status", int(status)),
			slog.Any("error", cause),
		)
		m.state = StateGaveUp
		m.mu.Unlock()
		m.notifyState(StateGaveUp)
		return
	}

	m.logger.Warn("connection lost", slog.Any("error", cause))
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked consumes one attempt from the retry budget and
// arms a fire-once timer. Caller must hold mu; the lock is released here.
func (m *ConnManager) scheduleReconnectLocked() {
	delay := m.retry.NextBackOff()
	if delay == backoff.Stop {
		m.logger.Error("reconnect attempts exhausted, giving up")
		m.state = StateGaveUp
		m.mu.Unlock()
		m.notifyState(StateGaveUp)
		return
	}
	m.state = StateReconnecting
	m.retryTimer = time.AfterFunc(delay, m.attemptReconnect)
	m.mu.Unlock()

	m.logger.Info("reconnect scheduled", slog.Duration("delay", delay))
	m.notifyState(StateReconnecting)
}

func (m *ConnManager) attemptReconnect() {
	m.mu.Lock()
	if m.intentional || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	ctx := m.ctx
	m.mu.Unlock()

	m.notifyState(StateConnecting)
	m.connect(ctx, gen)
}

// Send serializes the envelope and hands it to the transport. Returns false
// without queueing when the connection is not open; the caller decides what
// a failed send means.
func (m *ConnManager) Send(env *protocol.Envelope) bool {
	m.mu.Lock()
	if m.state != StateOpen || m.link == nil {
		m.mu.Unlock()
		return false
	}
	link := m.link
	m.mu.Unlock()

	data, err := protocol.Encode(env)
	if err != nil {
		m.logger.Error("failed to encode outbound envelope", slog.Any("error", err))
		return false
	}
	return link.Send(data)
}

// Close tears the connection down on purpose. The intentional flag is set
// before the transport is touched so the close callback never schedules a
// reconnect.
func (m *ConnManager) Close() {
	m.mu.Lock()
	m.intentional = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	link := m.link
	changed := m.state != StateClosed && m.state != StateGaveUp
	if changed {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if link != nil {
		link.Close(nil)
	}
	if changed {
		m.notifyState(StateClosed)
	}
}

func (m *ConnManager) notifyState(st ConnState) {
	if m.onState != nil {
		m.onState(st)
	}
}

func nonRetryable(status websocket.StatusCode) bool {
	switch status {
	case websocket.StatusProtocolError,
		websocket.StatusInvalidFramePayloadData,
		websocket.StatusPolicyViolation,
		websocket.StatusMessageTooBig:
		return true
	}
	return false
}

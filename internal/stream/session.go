package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DhruvalBhuva/trading-algo/internal/capital"
)

// CredentialSource supplies session tokens for the streaming handshake.
// SessionCredentials must return valid tokens, renewing the session if the
// current one is expired. InvalidateSession marks the current tokens dead
// so the next SessionCredentials call performs a fresh login.
type CredentialSource interface {
	SessionCredentials(ctx context.Context) (capital.Credentials, error)
	InvalidateSession()
}

// Session owns one streaming connection for a fixed set of epics. It
// connects, subscribes, answers server pings, renews expired session
// tokens, and reconnects with a fixed delay after transport failures.
// Stop is terminal.
type Session struct {
	cfg    Config
	epics  []string
	creds  CredentialSource
	logger *slog.Logger

	// newClient exists so tests can substitute the transport.
	newClient func(ClientConfig, *slog.Logger) Client

	events chan Event

	mu      sync.RWMutex
	state   State
	started bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSession creates a streaming session for the given epics.
func NewSession(cfg Config, epics []string, creds CredentialSource, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		cfg:       cfg,
		epics:     epics,
		creds:     creds,
		logger:    logger,
		newClient: NewClient,
		events:    make(chan Event, cfg.BufferSize),
		state:     StateDisconnected,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the session loop. It returns an error only if the session
// was already started or stopped; runtime failures surface as events.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	if s.state == StateTerminated {
		s.mu.Unlock()
		return ErrStopped
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop terminates the session. The events channel is closed once the loop
// has exited. A stopped session cannot be restarted.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// Events returns the channel of ticks, state changes, and errors. It is
// closed when the session terminates.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.emit(Event{State: state})
}

// emit delivers an event without blocking the session loop.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event buffer full, dropping event")
	}
}

// run is the connect/pump/reconnect loop. It exits on Stop, context
// cancellation, or a fatal session error.
func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)
	defer func() {
		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()
	}()

	for {
		if s.shouldExit(ctx) {
			return
		}

		err := s.runConnection(ctx)
		if err == nil {
			// Clean exit requested by Stop or context.
			return
		}

		var fatal *fatalError
		if errors.As(err, &fatal) {
			s.logger.Error("session failed", "error", fatal.err)
			s.emit(Event{Err: fatal.err, Fatal: true})
			return
		}

		s.logger.Warn("stream disconnected, reconnecting",
			"error", err,
			"delay", s.cfg.ReconnectDelay,
		)
		s.setState(StateDisconnected)
		s.emit(Event{Err: err})

		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *Session) shouldExit(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// fatalError marks failures the reconnect loop must not retry, such as a
// session renewal that itself fails.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// runConnection performs one full connection lifecycle: dial, handshake,
// subscribe, then pump messages until the link dies or the session stops.
// A nil return means a requested shutdown.
func (s *Session) runConnection(ctx context.Context) error {
	s.setState(StateConnecting)

	creds, err := s.creds.SessionCredentials(ctx)
	if err != nil {
		return &fatalError{err: fmt.Errorf("session credentials: %w", err)}
	}

	client := s.newClient(ClientConfig{
		URL:          s.cfg.URL,
		WriteTimeout: s.cfg.WriteTimeout,
		BufferSize:   s.cfg.BufferSize,
	}, s.logger)

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	s.setState(StateConnected)

	// The server expects a ping before the first subscribe, then a short
	// pause for the session to settle.
	if err := s.sendPing(client, creds); err != nil {
		return fmt.Errorf("initial ping: %w", err)
	}

	select {
	case <-time.After(s.cfg.SubscribeDelay):
	case <-s.stopCh:
		return nil
	case <-ctx.Done():
		return nil
	}

	if err := s.sendSubscribe(client, creds); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	return s.pump(ctx, client, creds)
}

// pump processes inbound messages and drives the heartbeat until the
// connection fails or the session stops.
func (s *Session) pump(ctx context.Context, client Client, creds capital.Credentials) error {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	// Bounded wait for the subscribe acknowledgement.
	subAck := time.NewTimer(s.cfg.SubscribeTimeout)
	defer func() { subAck.Stop() }()

	lastPong := time.Now()

	for {
		select {
		case <-s.stopCh:
			return nil

		case <-ctx.Done():
			return nil

		case <-subAck.C:
			return fmt.Errorf("no subscribe acknowledgement within %s", s.cfg.SubscribeTimeout)

		case <-pingTicker.C:
			if time.Since(lastPong) > s.cfg.PingInterval+s.cfg.PongWait {
				return ErrHeartbeatTimeout
			}
			if err := s.sendPing(client, creds); err != nil {
				return fmt.Errorf("ping: %w", err)
			}

		case err := <-client.Errors():
			return fmt.Errorf("transport: %w", err)

		case msg, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}

			var env serverMessage
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				s.logger.Debug("unparseable message, dropping", "error", err)
				continue
			}

			switch env.Destination {
			case destQuote:
				s.handleQuote(env.Payload, msg.ReceivedAt)

			case destPing:
				lastPong = time.Now()

			case destSubscribe:
				renewed, err := s.handleSubscribeAck(ctx, client, env, &creds)
				if err != nil {
					return err
				}
				if renewed {
					// Subscribe was resent with fresh tokens.
					subAck.Stop()
					subAck = time.NewTimer(s.cfg.SubscribeTimeout)
					continue
				}
				subAck.Stop()
				s.setState(StateSubscribed)
				lastPong = time.Now()

			default:
				s.logger.Debug("unhandled destination", "destination", env.Destination)
			}
		}
	}
}

// handleQuote parses a quote payload and emits a tick.
func (s *Session) handleQuote(payload json.RawMessage, receivedAt time.Time) {
	var q quotePayload
	if err := json.Unmarshal(payload, &q); err != nil {
		s.logger.Debug("bad quote payload, dropping", "error", err)
		return
	}
	if q.Epic == "" {
		return
	}

	tick := q.toTick(receivedAt)
	s.emit(Event{Tick: &tick})
}

// handleSubscribeAck processes a subscribe acknowledgement. An expired
// session token triggers renewal and a resubscribe with fresh tokens;
// renewal failure is fatal. Returns renewed=true when the subscribe was
// resent and a new acknowledgement is pending.
func (s *Session) handleSubscribeAck(ctx context.Context, client Client, env serverMessage, creds *capital.Credentials) (renewed bool, err error) {
	var ack subscribeResponsePayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &ack); err != nil {
			s.logger.Debug("bad subscribe payload", "error", err)
		}
	}

	if env.Status == "OK" && ack.ErrorCode == "" {
		s.logger.Info("subscribed",
			"epics", len(s.epics),
			"subscriptions", ack.Subscriptions,
		)
		return false, nil
	}

	if ack.ErrorCode == invalidSessionToken {
		s.logger.Warn("session token expired, renewing")
		s.creds.InvalidateSession()

		fresh, cerr := s.creds.SessionCredentials(ctx)
		if cerr != nil {
			return false, &fatalError{err: fmt.Errorf("session renewal: %w", cerr)}
		}
		*creds = fresh

		if serr := s.sendSubscribe(client, fresh); serr != nil {
			return false, fmt.Errorf("resubscribe: %w", serr)
		}
		return true, nil
	}

	return false, fmt.Errorf("subscribe rejected: status=%s errorCode=%s", env.Status, ack.ErrorCode)
}

func (s *Session) sendPing(client Client, creds capital.Credentials) error {
	msg := pingMessage{
		Destination:   destPing,
		CorrelationID: uuid.NewString(),
		CST:           creds.CST,
		SecurityToken: creds.SecurityToken,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return client.Send(data)
}

func (s *Session) sendSubscribe(client Client, creds capital.Credentials) error {
	msg := subscribeMessage{
		Destination:   destSubscribe,
		CorrelationID: uuid.NewString(),
		CST:           creds.CST,
		SecurityToken: creds.SecurityToken,
		Payload:       subscribePayload{Epics: s.epics},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return client.Send(data)
}

package webos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/venuecast/venuecast-core/internal/display"
)

// Session states. A session is created in stateRegistering, promoted to
// stateReady on a successful handshake (possibly via statePairing while
// the on-screen prompt is up), and ends in stateDead. Dead is terminal;
// recovery is a new session.
const (
	stateRegistering int32 = iota
	statePairing
	stateReady
	stateDead
)

// maxMessageSize bounds incoming frames. SSAP payloads are small JSON
// documents; anything near this limit means a confused peer.
const maxMessageSize = 1 << 20

// SSAP message types.
const (
	typeRegister   = "register"
	typeRegistered = "registered"
	typeRequest    = "request"
	typeResponse   = "response"
	typeError      = "error"
)

// message is one SSAP frame in either direction.
type message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	URI     string          `json:"uri,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// payloadFields are the payload members the bridge cares about; TVs
// send far more, all ignored.
type payloadFields struct {
	PairingType string `json:"pairingType"`
	ClientKey   string `json:"client-key"`
	ReturnValue bool   `json:"returnValue"`
}

func parsePayload(raw json.RawMessage) payloadFields {
	var fields payloadFields
	if len(raw) > 0 {
		// Unparseable payloads degrade to zero values; the callers
		// treat those as "not what I was waiting for".
		_ = json.Unmarshal(raw, &fields)
	}
	return fields
}

// registerPayload builds the pairing manifest. The permission list is
// what the TV's prompt shows the user; CONTROL_POWER is the one the
// bridge actually needs, the READ permissions keep the session usable
// for status queries.
func registerPayload(token string) map[string]any {
	payload := map[string]any{
		"forcePairing": false,
		"pairingType":  "PROMPT",
		"manifest": map[string]any{
			"manifestVersion": 1,
			"appVersion":      "1.1",
			"permissions": []string{
				"LAUNCH",
				"CONTROL_AUDIO",
				"CONTROL_DISPLAY",
				"CONTROL_INPUT_TV",
				"CONTROL_POWER",
				"READ_APP_STATUS",
				"READ_NETWORK_STATE",
				"READ_RUNNING_APPS",
				"READ_POWER_STATE",
			},
		},
	}
	if token != "" {
		payload["client-key"] = token
	}
	return payload
}

// session is one websocket connection to a TV, from dial to death.
//
// A read pump goroutine owns the receive side and routes frames to
// waiters by request id. Writers are serialised by writeMu. State is
// atomic so the adapter can inspect cached sessions without locking
// the whole map.
type session struct {
	conn *websocket.Conn
	addr string

	// Write serialisation (gorilla permits one concurrent writer)
	writeMu sync.Mutex

	// Request correlation
	pendingMu sync.Mutex
	pending   map[string]chan message
	idCounter atomic.Uint64

	state atomic.Int32

	// Shutdown coordination (once prevents double-close panics)
	done      chan struct{}
	closeOnce sync.Once

	logger Logger
}

// dialSession opens the websocket and starts the read pump. The
// returned session is still unregistered; callers must drive register
// before using it.
func dialSession(ctx context.Context, addr string, timeout time.Duration, logger Logger) (*session, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/"}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close() //nolint:errcheck // handshake already failed
		}
		return nil, fmt.Errorf("%w: dial %s: %v", display.ErrConnectivity, addr, err)
	}
	conn.SetReadLimit(maxMessageSize)

	s := &session{
		conn:    conn,
		addr:    addr,
		pending: make(map[string]chan message),
		done:    make(chan struct{}),
		logger:  logger,
	}
	s.state.Store(stateRegistering)

	go s.readPump()

	return s, nil
}

// currentState returns the session's lifecycle state.
func (s *session) currentState() int32 {
	return s.state.Load()
}

// close tears the session down. Safe to call from any goroutine, any
// number of times.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.state.Store(stateDead)
		close(s.done)
		s.conn.Close() //nolint:errcheck // socket is being abandoned either way
	})
}

// readPump receives frames until the socket dies and routes them to
// waiting requests. It is the only reader; its exit kills the session.
func (s *session) readPump() {
	defer s.close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.currentState() != stateDead {
				s.logger.Debug("webos socket closed", "addr", s.addr, "error", err)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("unparseable webos frame", "addr", s.addr, "error", err)
			continue
		}
		s.route(msg)
	}
}

// route hands a frame to whoever is waiting on its id. Frames nobody
// waits for (TV-initiated notices) are dropped.
func (s *session) route(msg message) {
	s.pendingMu.Lock()
	ch := s.pending[msg.ID]
	s.pendingMu.Unlock()

	if ch == nil {
		s.logger.Debug("unsolicited webos frame", "addr", s.addr, "type", msg.Type, "id", msg.ID)
		return
	}

	select {
	case ch <- msg:
	default:
		s.logger.Warn("webos frame dropped, waiter not draining", "addr", s.addr, "id", msg.ID)
	}
}

func (s *session) newID() string {
	return strconv.FormatUint(s.idCounter.Add(1), 10)
}

// addPending registers a waiter channel for a request id. The channel
// is buffered because registration produces several frames on one id.
func (s *session) addPending(id string) chan message {
	ch := make(chan message, 4)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	return ch
}

func (s *session) removePending(id string) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

func (s *session) writeJSON(msg message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// register drives the pairing handshake.
//
// Outcomes:
//   - (token, nil): registered; token is the key to persist (it may be
//     the stored one echoed back or a fresh grant)
//   - display.ErrPairingPending: the TV is showing its prompt; the
//     session stays alive in statePairing and promotes itself in the
//     background if the user accepts within the pairing window
//   - ErrRegistrationRejected: the TV refused the handshake
//   - display.ErrConnectivity: the socket died mid-handshake
//
// onPaired is invoked (from the background goroutine) with the granted
// token when a prompt is accepted after this call has returned.
func (s *session) register(ctx context.Context, token string, pairingWindow time.Duration, onPaired func(string)) (string, error) {
	id := s.newID()
	ch := s.addPending(id)

	req := message{ID: id, Type: typeRegister}
	payload, err := json.Marshal(registerPayload(token))
	if err != nil {
		s.removePending(id)
		s.close()
		return "", fmt.Errorf("%w: marshal register payload: %v", display.ErrProtocol, err)
	}
	req.Payload = payload

	if err := s.writeJSON(req); err != nil {
		s.removePending(id)
		s.close()
		return "", fmt.Errorf("%w: register write: %v", display.ErrConnectivity, err)
	}

	for {
		select {
		case msg := <-ch:
			switch msg.Type {
			case typeRegistered:
				s.removePending(id)
				s.state.Store(stateReady)
				return parsePayload(msg.Payload).ClientKey, nil

			case typeResponse:
				if parsePayload(msg.Payload).PairingType == "PROMPT" {
					s.state.Store(statePairing)
					go s.awaitAcceptance(id, ch, pairingWindow, onPaired)
					return "", fmt.Errorf("%w: accept the pairing prompt on the TV", display.ErrPairingPending)
				}
				// Interim responses other than the prompt carry
				// nothing the handshake needs.

			case typeError:
				s.removePending(id)
				s.close()
				return "", fmt.Errorf("%w: %s", ErrRegistrationRejected, msg.Error)
			}

		case <-s.done:
			s.removePending(id)
			return "", fmt.Errorf("%w: session closed during registration", display.ErrConnectivity)

		case <-ctx.Done():
			s.removePending(id)
			s.close()
			return "", fmt.Errorf("%w: registration: %v", display.ErrConnectivity, ctx.Err())
		}
	}
}

// awaitAcceptance keeps listening for the handshake outcome after the
// pairing prompt has been reported to the caller. Runs in its own
// goroutine; it owns the pending entry it inherited from register.
func (s *session) awaitAcceptance(id string, ch chan message, window time.Duration, onPaired func(string)) {
	defer s.removePending(id)

	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case msg := <-ch:
			switch msg.Type {
			case typeRegistered:
				s.state.Store(stateReady)
				s.logger.Info("pairing prompt accepted", "addr", s.addr)
				if key := parsePayload(msg.Payload).ClientKey; key != "" && onPaired != nil {
					onPaired(key)
				}
				return

			case typeError:
				s.logger.Info("pairing prompt declined", "addr", s.addr, "error", msg.Error)
				s.close()
				return
			}

		case <-timer.C:
			s.logger.Info("pairing prompt expired", "addr", s.addr)
			s.close()
			return

		case <-s.done:
			return
		}
	}
}

// request sends one SSAP request and waits for its response.
//
// A frame of type error becomes a Go error carrying the TV's text;
// classification is the caller's job.
func (s *session) request(ctx context.Context, uri string) (message, error) {
	id := s.newID()
	ch := s.addPending(id)
	defer s.removePending(id)

	req := message{ID: id, Type: typeRequest, URI: uri}
	if err := s.writeJSON(req); err != nil {
		s.close()
		return message{}, fmt.Errorf("request %s: %w", uri, err)
	}

	select {
	case msg := <-ch:
		if msg.Type == typeError {
			return msg, fmt.Errorf("request %s: %s", uri, msg.Error)
		}
		return msg, nil

	case <-s.done:
		return message{}, fmt.Errorf("request %s: %w", uri, ErrSessionClosed)

	case <-ctx.Done():
		return message{}, fmt.Errorf("request %s: %w", uri, ctx.Err())
	}
}

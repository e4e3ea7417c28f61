package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/opensetlist/setboard/internal/platform/errors"
	"github.com/opensetlist/setboard/internal/services/board/domain"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

var observerSeq atomic.Int64

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

type joinPayload struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
}

type joinedPayload struct {
	SessionID string `json:"session_id"`
}

type setSlotPayload struct {
	SessionID string `json:"session_id"`
	Slot      string `json:"slot"`
	Value     string `json:"value"`
	Username  string `json:"username"`
}

type deleteSlotPayload struct {
	SessionID string `json:"session_id"`
	Slot      string `json:"slot"`
	Username  string `json:"username"`
}

type deleteBoardPayload struct {
	SessionID      string `json:"session_id"`
	TargetUsername string `json:"target_username"`
}

type clearAllPayload struct {
	SessionID string `json:"session_id"`
}

type snapshotPayload struct {
	SessionID    string                       `json:"session_id"`
	Owner        string                       `json:"owner"`
	Participants []string                     `json:"participants"`
	Boards       map[string]map[string]string `json:"boards"`
}

// wsPeer serializes frame writes to one connection.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// SendSnapshot implements SnapshotSink for a live connection.
func (p *wsPeer) SendSnapshot(sessionID string, snapshot domain.Snapshot) error {
	return writeWSPayload(p, "snapshot", "", snapshotPayload{
		SessionID:    sessionID,
		Owner:        snapshot.Owner,
		Participants: snapshot.Participants,
		Boards:       snapshot.Boards,
	})
}

// wsSession tracks one connection's identity: which session it joined and
// under what display name.
type wsSession struct {
	observerID string
	peer       *wsPeer

	mu        sync.Mutex
	sessionID string
	username  string
}

func newWSSession(peer *wsPeer) *wsSession {
	return &wsSession{
		observerID: fmt.Sprintf("ws-%d", observerSeq.Add(1)),
		peer:       peer,
	}
}

func (s *wsSession) bind(sessionID, username string) {
	s.mu.Lock()
	s.sessionID = sessionID
	s.username = username
	s.mu.Unlock()
}

func (s *wsSession) identity() (sessionID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.username
}

func newWSHandler(gateway *Gateway, router *Router) http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, gateway, router)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
}

func handleWSConn(conn *websocket.Conn, gateway *Gateway, router *Router) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))
	session := newWSSession(peer)
	defer router.Unsubscribe(session.observerID)

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "INVALID_ARGUMENT", "invalid frame payload", false, nil)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large", false, nil)
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, "RESOURCE_EXHAUSTED", "too many frames", true, nil)
			continue
		}

		handleWSFrame(frame, session, gateway, router)
	}
}

func handleWSFrame(frame wsFrame, session *wsSession, gateway *Gateway, router *Router) {
	// Mutations run to completion once accepted: there is no mid-flight
	// cancellation tied to the socket, so a disconnect after a write still
	// ends in a consistent broadcast for the remaining observers.
	ctx := context.Background()

	switch frame.Type {
	case "join":
		var payload joinPayload
		if !decodePayload(session.peer, frame, &payload) {
			return
		}
		sessionID, err := boundarySessionID(payload.SessionID)
		if err != nil {
			reportWSError(session.peer, frame.RequestID, err)
			return
		}

		// Subscribe before the join commits so the joiner receives the
		// snapshot broadcast that confirms it. A rejected join must leave
		// observer wiring as it was: restore the previous subscription for
		// a socket that had already joined somewhere.
		prevSessionID, _ := session.identity()
		router.Subscribe(sessionID, session.observerID, session.peer)
		if _, err := gateway.Join(ctx, sessionID, payload.Username); err != nil {
			if prevSessionID != "" {
				router.Subscribe(prevSessionID, session.observerID, session.peer)
			} else {
				router.Unsubscribe(session.observerID)
			}
			reportWSError(session.peer, frame.RequestID, err)
			return
		}
		session.bind(sessionID, strings.TrimSpace(payload.Username))
		if err := writeWSPayload(session.peer, "joined", frame.RequestID, joinedPayload{SessionID: sessionID}); err != nil {
			log.Printf("board: write joined ack: %v", err)
		}

	case "set_slot":
		var payload setSlotPayload
		if !decodePayload(session.peer, frame, &payload) {
			return
		}
		sessionID, caller, ok := requireJoined(session, frame, payload.SessionID)
		if !ok {
			return
		}
		if err := gateway.SetSlot(ctx, sessionID, caller, payload.Username, payload.Slot, payload.Value); err != nil {
			reportWSError(session.peer, frame.RequestID, err)
		}

	case "delete_slot":
		var payload deleteSlotPayload
		if !decodePayload(session.peer, frame, &payload) {
			return
		}
		sessionID, caller, ok := requireJoined(session, frame, payload.SessionID)
		if !ok {
			return
		}
		if err := gateway.DeleteSlot(ctx, sessionID, caller, payload.Username, payload.Slot); err != nil {
			reportWSError(session.peer, frame.RequestID, err)
		}

	case "delete_board":
		var payload deleteBoardPayload
		if !decodePayload(session.peer, frame, &payload) {
			return
		}
		sessionID, caller, ok := requireJoined(session, frame, payload.SessionID)
		if !ok {
			return
		}
		if err := gateway.DeleteParticipantBoard(ctx, sessionID, caller, payload.TargetUsername); err != nil {
			reportWSError(session.peer, frame.RequestID, err)
		}

	case "clear_all":
		var payload clearAllPayload
		if !decodePayload(session.peer, frame, &payload) {
			return
		}
		sessionID, caller, ok := requireJoined(session, frame, payload.SessionID)
		if !ok {
			return
		}
		if err := gateway.ClearAll(ctx, sessionID, caller); err != nil {
			reportWSError(session.peer, frame.RequestID, err)
		}

	default:
		_ = writeWSError(session.peer, frame.RequestID, "UNIMPLEMENTED", fmt.Sprintf("unknown frame type %q", frame.Type), false, nil)
	}
}

// requireJoined resolves the caller identity for a mutation frame. The
// frame's session id must match the session this socket joined: mutation
// authority comes from the join, not from the payload.
func requireJoined(session *wsSession, frame wsFrame, rawSessionID string) (sessionID, caller string, ok bool) {
	joinedSession, username := session.identity()
	if joinedSession == "" || username == "" {
		_ = writeWSError(session.peer, frame.RequestID, "PERMISSION_DENIED", "join a session first", false, nil)
		return "", "", false
	}

	sessionID, err := boundarySessionID(rawSessionID)
	if err != nil {
		reportWSError(session.peer, frame.RequestID, err)
		return "", "", false
	}
	if sessionID != joinedSession {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "frame targets a session this connection has not joined", false, nil)
		return "", "", false
	}
	return sessionID, username, true
}

// boundarySessionID percent-decodes and trims an inbound session id before
// it reaches the core.
func boundarySessionID(raw string) (string, error) {
	unescaped, err := url.PathUnescape(strings.TrimSpace(raw))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeSessionIDInvalid, "session id is not percent-decodable", err)
	}
	return domain.NormalizeSessionID(unescaped)
}

func decodePayload(peer *wsPeer, frame wsFrame, target any) bool {
	if len(frame.Payload) == 0 {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload is required", false, nil)
		return false
	}
	if err := json.Unmarshal(frame.Payload, target); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "malformed payload", false, nil)
		return false
	}
	return true
}

func writeWSPayload(peer *wsPeer, frameType, requestID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("board: marshal websocket frame payload: %v", err)
		return err
	}
	return peer.writeFrame(wsFrame{Type: frameType, RequestID: requestID, Payload: raw})
}

func writeWSError(peer *wsPeer, requestID, code, message string, retryable bool, details map[string]any) error {
	raw, err := json.Marshal(wsErrorEnvelope{Error: wsError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Details:   details,
	}})
	if err != nil {
		return err
	}
	return peer.writeFrame(wsFrame{Type: "error", RequestID: requestID, Payload: raw})
}

// reportWSError translates a gateway error into the transport error frame,
// sent to the originating caller only.
func reportWSError(peer *wsPeer, requestID string, err error) {
	code := "INTERNAL"
	retryable := false
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		code = "INVALID_ARGUMENT"
	case apperrors.KindAuthorization:
		code = "PERMISSION_DENIED"
	case apperrors.KindStorage:
		code = "UNAVAILABLE"
		retryable = true
	}

	var details map[string]any
	if domainCode := apperrors.CodeOf(err); domainCode != apperrors.CodeUnknown {
		details = map[string]any{"reason": string(domainCode)}
	}
	_ = writeWSError(peer, requestID, code, err.Error(), retryable, details)
}

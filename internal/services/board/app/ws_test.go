package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/opensetlist/setboard/internal/services/board/storage/memory"
)

func newTestHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	router := NewRouter()
	gateway := NewGateway(NewRegistry(memory.New()), defaultCatalog(t), router)
	server := httptest.NewServer(NewHandler(gateway, router))
	t.Cleanup(server.Close)
	return server
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", server.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := json.NewEncoder(conn).Encode(wsFrame{Type: frameType, RequestID: "req-1", Payload: raw}); err != nil {
		t.Fatalf("send %s frame: %v", frameType, err)
	}
}

func readFrame(t *testing.T, decoder *json.Decoder) wsFrame {
	t.Helper()
	var frame wsFrame
	if err := decoder.Decode(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func decodeSnapshot(t *testing.T, frame wsFrame) snapshotPayload {
	t.Helper()
	if frame.Type != "snapshot" {
		t.Fatalf("expected snapshot frame, got %q", frame.Type)
	}
	var payload snapshotPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode snapshot payload: %v", err)
	}
	return payload
}

func decodeError(t *testing.T, frame wsFrame) wsError {
	t.Helper()
	if frame.Type != "error" {
		t.Fatalf("expected error frame, got %q", frame.Type)
	}
	var envelope wsErrorEnvelope
	if err := json.Unmarshal(frame.Payload, &envelope); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return envelope.Error
}

func joinSession(t *testing.T, conn *websocket.Conn, decoder *json.Decoder, sessionID, username string) snapshotPayload {
	t.Helper()
	sendFrame(t, conn, "join", joinPayload{SessionID: sessionID, Username: username})
	snap := decodeSnapshot(t, readFrame(t, decoder))
	if ack := readFrame(t, decoder); ack.Type != "joined" {
		t.Fatalf("expected joined ack after snapshot, got %q", ack.Type)
	}
	return snap
}

func TestWSJoinDeliversSnapshotAndAck(t *testing.T) {
	server := newTestHTTPServer(t)
	conn := dialWS(t, server)
	decoder := json.NewDecoder(conn)

	snap := joinSession(t, conn, decoder, "jam-night", "alice")
	if snap.SessionID != "jam-night" {
		t.Fatalf("expected snapshot for jam-night, got %q", snap.SessionID)
	}
	if snap.Owner != "alice" {
		t.Fatalf("expected first joiner to own the session, got %q", snap.Owner)
	}
	if board, ok := snap.Boards["alice"]; !ok || len(board) != 0 {
		t.Fatalf("expected alice with an empty board, got %v", snap.Boards)
	}
}

func TestWSMutationBroadcastsToAllConnections(t *testing.T) {
	server := newTestHTTPServer(t)

	alice := dialWS(t, server)
	aliceFrames := json.NewDecoder(alice)
	joinSession(t, alice, aliceFrames, "jam-night", "alice")

	bob := dialWS(t, server)
	bobFrames := json.NewDecoder(bob)
	joinSession(t, bob, bobFrames, "jam-night", "bob")

	// alice sees bob's join as a broadcast.
	snap := decodeSnapshot(t, readFrame(t, aliceFrames))
	if len(snap.Participants) != 2 {
		t.Fatalf("expected two participants after bob joined, got %v", snap.Participants)
	}

	sendFrame(t, alice, "set_slot", setSlotPayload{
		SessionID: "jam-night",
		Slot:      "Opener",
		Value:     "Horizon",
		Username:  "alice",
	})

	for name, decoder := range map[string]*json.Decoder{"alice": aliceFrames, "bob": bobFrames} {
		snap := decodeSnapshot(t, readFrame(t, decoder))
		if snap.Boards["alice"]["Opener"] != "Horizon" {
			t.Fatalf("expected %s to receive the pick broadcast, got %v", name, snap.Boards)
		}
	}
}

func TestWSFailedRejoinKeepsSubscription(t *testing.T) {
	server := newTestHTTPServer(t)

	alice := dialWS(t, server)
	aliceFrames := json.NewDecoder(alice)
	joinSession(t, alice, aliceFrames, "jam-night", "alice")

	// A rejected join on an already-joined socket must not disturb its
	// live subscription.
	sendFrame(t, alice, "join", joinPayload{SessionID: "jam-night", Username: "   "})
	if wsErr := decodeError(t, readFrame(t, aliceFrames)); wsErr.Code != "INVALID_ARGUMENT" {
		t.Fatalf("expected INVALID_ARGUMENT, got %q", wsErr.Code)
	}

	bob := dialWS(t, server)
	bobFrames := json.NewDecoder(bob)
	joinSession(t, bob, bobFrames, "jam-night", "bob")

	snap := decodeSnapshot(t, readFrame(t, aliceFrames))
	if len(snap.Participants) != 2 {
		t.Fatalf("expected alice to still receive broadcasts, got %v", snap.Participants)
	}

	sendFrame(t, alice, "set_slot", setSlotPayload{
		SessionID: "jam-night",
		Slot:      "Opener",
		Value:     "Horizon",
		Username:  "alice",
	})
	for name, decoder := range map[string]*json.Decoder{"alice": aliceFrames, "bob": bobFrames} {
		snap := decodeSnapshot(t, readFrame(t, decoder))
		if snap.Boards["alice"]["Opener"] != "Horizon" {
			t.Fatalf("expected %s to receive the pick broadcast, got %v", name, snap.Boards)
		}
	}
}

func TestWSMutationBeforeJoinIsDenied(t *testing.T) {
	server := newTestHTTPServer(t)
	conn := dialWS(t, server)
	decoder := json.NewDecoder(conn)

	sendFrame(t, conn, "set_slot", setSlotPayload{
		SessionID: "jam-night",
		Slot:      "Opener",
		Value:     "Horizon",
		Username:  "alice",
	})

	wsErr := decodeError(t, readFrame(t, decoder))
	if wsErr.Code != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED, got %q", wsErr.Code)
	}
}

func TestWSUnknownSlotReturnsErrorWithoutBroadcast(t *testing.T) {
	server := newTestHTTPServer(t)
	conn := dialWS(t, server)
	decoder := json.NewDecoder(conn)
	joinSession(t, conn, decoder, "jam-night", "alice")

	sendFrame(t, conn, "set_slot", setSlotPayload{
		SessionID: "jam-night",
		Slot:      "Intermission",
		Value:     "Horizon",
		Username:  "alice",
	})

	wsErr := decodeError(t, readFrame(t, decoder))
	if wsErr.Code != "INVALID_ARGUMENT" {
		t.Fatalf("expected INVALID_ARGUMENT, got %q", wsErr.Code)
	}
	if reason, ok := wsErr.Details["reason"]; !ok || reason != "SLOT_UNKNOWN" {
		t.Fatalf("expected SLOT_UNKNOWN reason, got %v", wsErr.Details)
	}
}

func TestWSUnknownFrameTypeIsUnimplemented(t *testing.T) {
	server := newTestHTTPServer(t)
	conn := dialWS(t, server)
	decoder := json.NewDecoder(conn)

	sendFrame(t, conn, "dance", struct{}{})

	wsErr := decodeError(t, readFrame(t, decoder))
	if wsErr.Code != "UNIMPLEMENTED" {
		t.Fatalf("expected UNIMPLEMENTED, got %q", wsErr.Code)
	}
}

func TestWSFrameForForeignSessionIsRejected(t *testing.T) {
	server := newTestHTTPServer(t)
	conn := dialWS(t, server)
	decoder := json.NewDecoder(conn)
	joinSession(t, conn, decoder, "jam-night", "alice")

	sendFrame(t, conn, "clear_all", clearAllPayload{SessionID: "other-session"})

	wsErr := decodeError(t, readFrame(t, decoder))
	if wsErr.Code != "INVALID_ARGUMENT" {
		t.Fatalf("expected INVALID_ARGUMENT, got %q", wsErr.Code)
	}
}

func TestWSOwnerRemovesParticipantBoard(t *testing.T) {
	server := newTestHTTPServer(t)

	alice := dialWS(t, server)
	aliceFrames := json.NewDecoder(alice)
	joinSession(t, alice, aliceFrames, "jam-night", "alice")

	bob := dialWS(t, server)
	bobFrames := json.NewDecoder(bob)
	joinSession(t, bob, bobFrames, "jam-night", "bob")
	decodeSnapshot(t, readFrame(t, aliceFrames)) // bob's join broadcast

	sendFrame(t, bob, "delete_board", deleteBoardPayload{SessionID: "jam-night", TargetUsername: "alice"})
	if wsErr := decodeError(t, readFrame(t, bobFrames)); wsErr.Code != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED for bob, got %q", wsErr.Code)
	}

	sendFrame(t, alice, "delete_board", deleteBoardPayload{SessionID: "jam-night", TargetUsername: "bob"})
	snap := decodeSnapshot(t, readFrame(t, aliceFrames))
	if len(snap.Participants) != 1 || snap.Participants[0] != "alice" {
		t.Fatalf("expected only alice to remain, got %v", snap.Participants)
	}
	if _, ok := snap.Boards["bob"]; ok {
		t.Fatal("expected bob's board to be gone")
	}
}

func TestUpEndpoint(t *testing.T) {
	server := newTestHTTPServer(t)

	resp, err := http.Get(server.URL + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "OK" {
		t.Fatalf("expected OK body, got %q", body)
	}
}

func TestSongsEndpoint(t *testing.T) {
	server := newTestHTTPServer(t)

	resp, err := http.Get(server.URL + "/songs")
	if err != nil {
		t.Fatalf("get /songs: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Songs []string `json:"songs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode songs: %v", err)
	}
	if len(payload.Songs) == 0 {
		t.Fatal("expected the default catalog to list songs")
	}

	post, err := http.Post(server.URL+"/songs", "application/json", nil)
	if err != nil {
		t.Fatalf("post /songs: %v", err)
	}
	defer post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", post.StatusCode)
	}
}

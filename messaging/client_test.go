// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bureau-foundation/gatekeeper/lib/secret"
)

// testBuffer creates a secret.Buffer from a string for testing. The
// buffer is automatically closed when the test completes.
func testBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("creating test buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func testSession(t *testing.T, handler http.Handler) *Session {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	userID, err := ParseUserID("@gatekeeper:example.org")
	if err != nil {
		t.Fatal(err)
	}
	session, err := client.SessionFromToken(userID, testBuffer(t, "syt_token"))
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	return session
}

func TestNewClient(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		client, err := NewClient(ClientConfig{HomeserverURL: "http://localhost:6167"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client == nil {
			t.Fatal("NewClient returned nil")
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{}); err == nil {
			t.Fatal("expected error for empty URL")
		}
	})

	t.Run("invalid URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{HomeserverURL: "://invalid"}); err == nil {
			t.Fatal("expected error for invalid URL")
		}
	})
}

func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/login" {
			t.Errorf("unexpected path: %s", request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding login body: %v", err)
		}
		if body["type"] != "m.login.password" {
			t.Errorf("login type = %v", body["type"])
		}
		if body["user"] != "gatekeeper" {
			t.Errorf("login user = %v", body["user"])
		}
		if body["password"] != "hunter2" {
			t.Errorf("login password = %v", body["password"])
		}
		json.NewEncoder(writer).Encode(map[string]any{
			"user_id":      "@gatekeeper:example.org",
			"access_token": "syt_abc",
			"device_id":    "GATEKEEPER",
		})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	session, err := client.Login(context.Background(), "gatekeeper", testBuffer(t, "hunter2"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	if got := session.UserID().String(); got != "@gatekeeper:example.org" {
		t.Errorf("UserID = %q", got)
	}
	if session.DeviceID() != "GATEKEEPER" {
		t.Errorf("DeviceID = %q", session.DeviceID())
	}
}

func TestWhoAmISendsBearerToken(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer syt_token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(writer).Encode(map[string]any{"user_id": "@gatekeeper:example.org"})
	}))

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if userID.String() != "@gatekeeper:example.org" {
		t.Errorf("WhoAmI = %q", userID)
	}
}

func TestMatrixErrorDecoding(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusForbidden)
		json.NewEncoder(writer).Encode(map[string]any{
			"errcode": "M_FORBIDDEN",
			"error":   "You are not invited to this room.",
		})
	}))

	roomID, _ := ParseRoomID("!room:example.org")
	_, err := session.JoinRoom(context.Background(), roomID)
	if err == nil {
		t.Fatal("JoinRoom succeeded against a 403")
	}
	if !IsMatrixError(err, ErrCodeForbidden) {
		t.Errorf("error is not M_FORBIDDEN: %v", err)
	}
}

func TestSendMessageUsesUniqueTransactionIDs(t *testing.T) {
	var paths []string
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", request.Method)
		}
		paths = append(paths, request.URL.Path)
		json.NewEncoder(writer).Encode(map[string]any{"event_id": "$evt"})
	}))

	roomID, _ := ParseRoomID("!room:example.org")
	for i := 0; i < 2; i++ {
		if _, err := session.SendMessage(context.Background(), roomID, NewTextMessage("hi")); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}

	if len(paths) != 2 {
		t.Fatalf("saw %d requests, want 2", len(paths))
	}
	// request.URL.Path is the decoded form of the escaped request path.
	prefix := "/_matrix/client/v3/rooms/!room:example.org/send/m.room.message/"
	for _, path := range paths {
		if !strings.HasPrefix(path, prefix) {
			t.Errorf("send path = %q, want prefix %q", path, prefix)
		}
	}
	if paths[0] == paths[1] {
		t.Errorf("transaction IDs repeated: %q", paths[0])
	}
}

func TestRedactEvent(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", request.Method)
		}
		want := "/_matrix/client/v3/rooms/!room:example.org/redact/$notice/"
		if !strings.HasPrefix(request.URL.Path, want) {
			t.Errorf("redact path = %q, want prefix %q", request.URL.Path, want)
		}
		json.NewEncoder(writer).Encode(map[string]any{"event_id": "$redaction"})
	}))

	roomID, _ := ParseRoomID("!room:example.org")
	eventID, _ := ParseEventID("$notice")
	redaction, err := session.RedactEvent(context.Background(), roomID, eventID, "unlinked")
	if err != nil {
		t.Fatalf("RedactEvent: %v", err)
	}
	if redaction.String() != "$redaction" {
		t.Errorf("redaction event ID = %q", redaction)
	}
}

func TestSendStateEvent(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", request.Method)
		}
		want := "/_matrix/client/v3/rooms/!room:example.org/state/m.room.topic/"
		if request.URL.Path != want {
			t.Errorf("state path = %q, want %q", request.URL.Path, want)
		}
		var topic TopicContent
		if err := json.NewDecoder(request.Body).Decode(&topic); err != nil || topic.Topic != "Closed" {
			t.Errorf("topic content = %+v (%v)", topic, err)
		}
		json.NewEncoder(writer).Encode(map[string]any{"event_id": "$topic"})
	}))

	roomID, _ := ParseRoomID("!room:example.org")
	if err := session.SendStateEvent(context.Background(), roomID, "m.room.topic", "", TopicContent{Topic: "Closed"}); err != nil {
		t.Fatalf("SendStateEvent: %v", err)
	}
}

func TestGetDisplayNameMissingProfileIsEmpty(t *testing.T) {
	session := testSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
		json.NewEncoder(writer).Encode(map[string]any{"errcode": "M_NOT_FOUND", "error": "no profile"})
	}))

	userID, _ := ParseUserID("@ghost:example.org")
	name, err := session.GetDisplayName(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetDisplayName: %v", err)
	}
	if name != "" {
		t.Errorf("display name = %q, want empty", name)
	}
}

func TestPowerLevelsLevel(t *testing.T) {
	levels := PowerLevelsContent{
		Users:        map[string]int{"@mod:example.org": 50},
		UsersDefault: 0,
	}
	mod, _ := ParseUserID("@mod:example.org")
	plain, _ := ParseUserID("@player:example.org")
	if got := levels.Level(mod); got != 50 {
		t.Errorf("moderator level = %d, want 50", got)
	}
	if got := levels.Level(plain); got != 0 {
		t.Errorf("default level = %d, want 0", got)
	}
}

func TestParseIDs(t *testing.T) {
	for _, bad := range []string{"", "steve", ":example.org", "@:example.org", "@steve"} {
		if _, err := ParseUserID(bad); err == nil {
			t.Errorf("ParseUserID(%q) succeeded", bad)
		}
	}
	if _, err := ParseUserID("@steve:example.org"); err != nil {
		t.Errorf("ParseUserID valid: %v", err)
	}
	if _, err := ParseRoomID("room:example.org"); err == nil {
		t.Error("ParseRoomID without '!' succeeded")
	}
	if _, err := ParseEventID("abc"); err == nil {
		t.Error("ParseEventID without '$' succeeded")
	}

	userID, _ := ParseUserID("@steve:example.org")
	if userID.Localpart() != "steve" {
		t.Errorf("Localpart = %q", userID.Localpart())
	}
}

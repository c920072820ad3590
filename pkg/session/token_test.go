package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if sb := r.Header.Get(SandboxHeader); sb != "sandbox-1" {
			t.Errorf("%s = %q; want sandbox-1", SandboxHeader, sb)
		}
		body, _ := io.ReadAll(r.Body)
		var req tokenRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		if req.RoomConfig == nil || len(req.RoomConfig.Agents) != 1 || req.RoomConfig.Agents[0].AgentName != "helper" {
			t.Errorf("room config = %+v; want one agent named helper", req.RoomConfig)
		}
		json.NewEncoder(w).Encode(Credential{
			ServerURL:        "wss://rooms.example",
			RoomName:         "room-1",
			ParticipantName:  "guest",
			ParticipantToken: "jwt-abc",
		})
	}))
	defer srv.Close()

	c := NewTokenClient(srv.URL, "sandbox-1", WithAgentName("helper"))
	cred, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if cred.ServerURL != "wss://rooms.example" || cred.ParticipantToken != "jwt-abc" {
		t.Errorf("credential = %+v", cred)
	}
}

func TestTokenClient_FetchNoAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "{}" {
			t.Errorf("body = %s; want empty request object", body)
		}
		json.NewEncoder(w).Encode(Credential{
			ServerURL:        "wss://x",
			RoomName:         "r",
			ParticipantName:  "guest",
			ParticipantToken: "t",
		})
	}))
	defer srv.Close()

	if _, err := NewTokenClient(srv.URL, "sb").Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

func TestTokenClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			"server error",
			func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			http.StatusInternalServerError,
		},
		{
			"non-json body",
			func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "<html>login page</html>")
			},
			http.StatusOK,
		},
		{
			"missing fields",
			func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"roomName":"r"}`)
			},
			http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := NewTokenClient(srv.URL, "sb").Fetch(context.Background())
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Fetch error = %v; want *FetchError", err)
			}
			if fe.HTTPStatus != tc.wantStatus {
				t.Errorf("HTTPStatus = %d; want %d", fe.HTTPStatus, tc.wantStatus)
			}
		})
	}
}

func TestTokenClient_FetchNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewTokenClient(srv.URL, "sb").Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch error = %v; want *FetchError", err)
	}
	if fe.HTTPStatus != 0 {
		t.Errorf("HTTPStatus = %d; want 0 for network failure", fe.HTTPStatus)
	}
}

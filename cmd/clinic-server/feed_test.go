package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"

	"github.com/clinic/clinic/internal/platform/websocket"
)

func TestServer_LedgerFeed(t *testing.T) {
	e := newTestServer(t, testConfig("development", ""))
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?topics=" + websocket.TopicPatients
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	body := `{"name":"Anita Sharma","address":"Kolkata","mobile":"9876543210","disease":"piles","totalCost":5000}`
	res, err := http.Post(srv.URL+"/api/v1/patients", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(res.Body).Decode(&created)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create patient: %d", res.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev websocket.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "patient.created" || ev.Topic != websocket.TopicPatients {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.ResourceID != created.ID || ev.PatientID != created.ID {
		t.Errorf("event ids = %s/%s, want %s", ev.ResourceID, ev.PatientID, created.ID)
	}
}

func TestServer_LedgerFeedRequiresRole(t *testing.T) {
	e := newTestServer(t, testConfig("staging", "test-signing-key"))

	if rec := do(e, http.MethodGet, "/api/v1/ws", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
}

package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/link"
)

func TestServer_ConnectLink(t *testing.T) {
	svc := &mockService{
		connectOutcome: link.ConnectOutcome{
			Link: link.Info{
				ConnectionID: "dev-1",
				Endpoint:     "10.0.0.5:9000",
				Streaming:    true,
				ConnectedAt:  time.Now(),
			},
			Token:       "ntlk_d_abc",
			TokenIssued: true,
		},
	}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "POST", "/api/links/dev-1/connect", `{"endpoint":"10.0.0.5:9000"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.connectCalls) != 1 {
		t.Fatalf("expected 1 connect call, got %d", len(svc.connectCalls))
	}
	call := svc.connectCalls[0]
	if call.connectionID != "dev-1" {
		t.Errorf("expected connection ID dev-1, got %q", call.connectionID)
	}
	if call.endpoint != "10.0.0.5:9000" {
		t.Errorf("expected endpoint 10.0.0.5:9000, got %q", call.endpoint)
	}
	if call.token != "" {
		t.Errorf("expected empty token, got %q", call.token)
	}

	body := decodeBody(t, rec)
	if body["token"] != "ntlk_d_abc" {
		t.Errorf("expected token in response, got %v", body["token"])
	}
	if body["token_issued"] != true {
		t.Errorf("expected token_issued true, got %v", body["token_issued"])
	}
}

func TestServer_ConnectLink_WithToken(t *testing.T) {
	svc := &mockService{}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "POST", "/api/links/dev-1/connect",
		`{"endpoint":"10.0.0.5:9000","token":"ntlk_d_saved"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.connectCalls[0].token != "ntlk_d_saved" {
		t.Errorf("expected saved token to be forwarded, got %q", svc.connectCalls[0].token)
	}
}

func TestServer_ConnectLink_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"endpoint:`},
		{name: "missing endpoint", body: `{"token":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("127.0.0.1", 18081, &mockService{})

			rec := serveAPI(s, "POST", "/api/links/dev-1/connect", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestServer_ConnectLink_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "rejected by user",
			err:      domain.NewLinkError("request_token", domain.ErrAuthRejected, ""),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "login failed",
			err:      domain.NewLinkError("login", domain.ErrLoginFailed, "invalid token"),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no token granted",
			err:      domain.NewLinkError("request_token", domain.ErrNoToken, ""),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "dial failure",
			err:      domain.NewLinkError("connect", errors.New("connection refused"), "10.0.0.5:9000"),
			wantCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("127.0.0.1", 18081, &mockService{connectErr: tt.err})

			rec := serveAPI(s, "POST", "/api/links/dev-1/connect", `{"endpoint":"10.0.0.5:9000"}`)

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestServer_ListLinks(t *testing.T) {
	svc := &mockService{links: []link.Info{
		{ConnectionID: "dev-1", Endpoint: "10.0.0.5:9000"},
		{ConnectionID: "dev-2", Endpoint: "10.0.0.6:9000"},
	}}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "GET", "/api/links", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("expected count 2, got %v", body["count"])
	}
}

func TestServer_DisconnectLink(t *testing.T) {
	svc := &mockService{}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "DELETE", "/api/links/dev-1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.disconnected) != 1 || svc.disconnected[0] != "dev-1" {
		t.Errorf("expected disconnect of dev-1, got %v", svc.disconnected)
	}
}

func TestServer_DisconnectLink_NotFound(t *testing.T) {
	svc := &mockService{disconnectErr: domain.ErrLinkNotFound}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "DELETE", "/api/links/ghost", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

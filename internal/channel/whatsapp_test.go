package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/contest-radar/contest-engine/internal/config"
)

func waTestConfig(url string) config.WhatsAppConfig {
	return config.WhatsAppConfig{
		Enabled:       true,
		APIURL:        url,
		PhoneNumberID: "12345",
		AccessToken:   "token",
	}
}

func TestWhatsAppSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/12345/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected auth header: %s", got)
		}

		var payload waTextMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		if payload.To != "+15550001111" || payload.Text.Body != "hello" {
			t.Errorf("unexpected payload: %+v", payload)
		}

		fmt.Fprint(w, `{"messages": [{"id": "wamid.XYZ"}]}`)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(waTestConfig(srv.URL))
	res := s.Send(context.Background(), "+15550001111", Message{Subject: "subj", Body: "hello"})

	if !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}
	if res.MessageID != "wamid.XYZ" {
		t.Errorf("provider message id not captured: %q", res.MessageID)
	}
}

func TestWhatsAppSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "invalid access token"}}`)
	}))
	defer srv.Close()

	s := NewWhatsAppSender(waTestConfig(srv.URL))
	res := s.Send(context.Background(), "+15550001111", Message{Body: "hello"})

	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "invalid access token") {
		t.Errorf("provider error not surfaced: %q", res.Error)
	}
}

func TestWhatsAppSendEmptyDestination(t *testing.T) {
	s := NewWhatsAppSender(waTestConfig("http://unused"))
	res := s.Send(context.Background(), "", Message{Body: "hello"})
	if res.Success {
		t.Fatal("expected failure for empty destination")
	}
}

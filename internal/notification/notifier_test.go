package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestMulti_KeepsGoingOnFailure(t *testing.T) {
	failing := &recorder{err: errors.New("boom")}
	ok := &recorder{}
	m := Multi{failing, nil, ok}

	err := m.Send(context.Background(), Message{Level: LevelInfo, Title: "t", Body: "b"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, want boom", err)
	}
	if len(ok.msgs) != 1 {
		t.Errorf("second backend got %d messages", len(ok.msgs))
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("request = %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(srv.URL)
	err := w.Send(context.Background(), Message{
		Level: LevelWarning, Title: "AAPL above 200", Body: "price 201.5", UserID: 3,
		Fields: map[string]any{"symbol": "AAPL"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["level"] != "WARNING" || got["title"] != "AAPL above 200" || got["message"] != "price 201.5" {
		t.Errorf("payload = %v", got)
	}
	if got["user_id"] != 3.0 {
		t.Errorf("user_id = %v", got["user_id"])
	}
	if _, ok := got["ts"]; !ok {
		t.Error("payload has no ts")
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Message{Title: "x"}); err == nil {
		t.Error("expected error for 502")
	}
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.APIBase = srv.URL
	if err := tg.Send(context.Background(), Message{Level: LevelCritical, Title: "BRK.B", Body: "down 5%"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if body["chat_id"] != "42" || body["parse_mode"] != "MarkdownV2" {
		t.Errorf("body = %v", body)
	}
	if text, _ := body["text"].(string); !strings.Contains(text, `*BRK\.B*`) {
		t.Errorf("text = %q", text)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b.c!"); got != `a\_b\.c\!` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

func TestNew(t *testing.T) {
	if n := len(New(Config{})); n != 1 {
		t.Errorf("default chain = %d backends, want 1", n)
	}
	if n := len(New(Config{WebhookURL: "http://x", TelegramBotToken: "t", TelegramChatID: "c"})); n != 3 {
		t.Errorf("full chain = %d backends, want 3", n)
	}
}

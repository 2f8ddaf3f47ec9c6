package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

// fakeBotAPI records calls and serves canned Bot API responses per method.
type fakeBotAPI struct {
	t        *testing.T
	requests []map[string]any
	methods  []string
	fail     bool
}

func (f *fakeBotAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]
		f.methods = append(f.methods, method)

		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var payload map[string]any
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &payload); err != nil {
				f.t.Errorf("bad request body for %s: %v", method, err)
			}
			f.requests = append(f.requests, payload)
		}

		if f.fail {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
			return
		}
		switch method {
		case "getUpdates":
			io.WriteString(w, `{"ok":true,"result":[
				{"update_id":10,"message":{"message_id":1,"from":{"id":42,"first_name":"Ivan"},"chat":{"id":-100},"text":"/check"}},
				{"update_id":11,"message":{"message_id":2,"from":{"id":42,"first_name":"Ivan"},"chat":{"id":-100},"text":"/stats"}}
			]}`)
		default:
			io.WriteString(w, `{"ok":true,"result":{}}`)
		}
	}
}

func newFakeClient(t *testing.T, fail bool) (*Client, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{t: t, fail: fail}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return New("TESTTOKEN", srv.URL, srv.Client()), fake
}

func TestSendMessage(t *testing.T) {
	c, fake := newFakeClient(t, false)
	if err := c.SendMessage(context.Background(), -100, "<b>привет</b>"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(fake.requests))
	}
	req := fake.requests[0]
	if req["text"] != "<b>привет</b>" || req["parse_mode"] != "HTML" {
		t.Errorf("unexpected payload: %v", req)
	}
	if req["chat_id"] != float64(-100) {
		t.Errorf("chat_id = %v", req["chat_id"])
	}
}

func TestSendMessageAPIError(t *testing.T) {
	c, _ := newFakeClient(t, true)
	err := c.SendMessage(context.Background(), -100, "x")
	if err == nil {
		t.Fatal("expected an error for ok=false response")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error should carry the API description, got %v", err)
	}
}

func TestSendMessageErrorTruncationKeepsValidUTF8(t *testing.T) {
	// One leading ASCII byte shifts every following two-byte Cyrillic rune off
	// the byte-count boundary, so a byte-indexed cut would land mid-rune.
	desc := "x" + strings.Repeat("ы", 300)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": desc})
	}))
	t.Cleanup(srv.Close)

	c := New("TESTTOKEN", srv.URL, srv.Client())
	err := c.SendMessage(context.Background(), -100, "x")
	if err == nil {
		t.Fatal("expected an error for ok=false response")
	}
	if !utf8.ValidString(err.Error()) {
		t.Fatalf("truncated error text is not valid UTF-8: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "xыы") {
		t.Errorf("error should carry the description prefix, got %v", err)
	}
	if n := len([]rune(err.Error())); n > 200 {
		t.Errorf("error text not bounded, %d runes", n)
	}
}

func TestGetUpdates(t *testing.T) {
	c, fake := newFakeClient(t, false)
	updates, err := c.GetUpdates(context.Background(), 10, 30)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].UpdateID != 10 || updates[0].Message.Text != "/check" {
		t.Errorf("unexpected first update: %+v", updates[0])
	}
	if updates[1].Message.From.ID != 42 || updates[1].Message.Chat.ID != -100 {
		t.Errorf("unexpected second update: %+v", updates[1])
	}
	if fake.requests[0]["offset"] != float64(10) {
		t.Errorf("offset = %v, want 10", fake.requests[0]["offset"])
	}
}

func TestSendDocument(t *testing.T) {
	var gotFilename string
	var gotData []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("chat_id") != "-100" {
			t.Errorf("chat_id = %q", r.FormValue("chat_id"))
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			gotFilename = header.Filename
			gotData, _ = io.ReadAll(file)
			file.Close()
		}
		io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	t.Cleanup(srv.Close)

	c := New("TESTTOKEN", srv.URL, srv.Client())
	if err := c.SendDocument(context.Background(), -100, "report.csv", []byte("a,b\n1,2\n")); err != nil {
		t.Fatalf("SendDocument: %v", err)
	}
	if gotFilename != "report.csv" {
		t.Errorf("filename = %q", gotFilename)
	}
	if string(gotData) != "a,b\n1,2\n" {
		t.Errorf("data = %q", gotData)
	}
}

func TestDelivererSendsBlocksInOrder(t *testing.T) {
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		texts = append(texts, payload["text"].(string))
		io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	t.Cleanup(srv.Close)

	d := &Deliverer{Client: New("TESTTOKEN", srv.URL, srv.Client()), ChatID: -100}
	if err := d.Deliver(context.Background(), []string{"первый", "второй", "третий"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	want := []string{"первый", "второй", "третий"}
	if len(texts) != len(want) {
		t.Fatalf("sent %d blocks, want %d", len(texts), len(want))
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("block %d = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestDelivererStopsOnFirstFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			io.WriteString(w, `{"ok":false,"description":"flood wait"}`)
			return
		}
		io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	t.Cleanup(srv.Close)

	d := &Deliverer{Client: New("TESTTOKEN", srv.URL, srv.Client()), ChatID: -100}
	err := d.Deliver(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected a delivery error")
	}
	if calls != 2 {
		t.Fatalf("delivery must abort on first failure, made %d calls", calls)
	}
}

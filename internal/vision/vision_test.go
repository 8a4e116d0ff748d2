package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHTTPAnswerer(t *testing.T) {
	img := []byte("\x89PNG fake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		got, _ := base64.StdEncoding.DecodeString(req.Image)
		if string(got) != string(img) {
			t.Errorf("image = %q", got)
		}
		if req.Question != "what is open?" {
			t.Errorf("question = %q", req.Question)
		}
		_ = json.NewEncoder(w).Encode(answerResponse{Answer: "notepad"})
	}))
	defer srv.Close()

	a := NewHTTPAnswerer(srv.URL, time.Second)
	answer, err := a.Answer(context.Background(), img, "what is open?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "notepad" {
		t.Errorf("answer = %q", answer)
	}
}

func TestHTTPAnswerer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(answerResponse{Error: "bad image"})
	}))
	defer srv.Close()

	_, err := NewHTTPAnswerer(srv.URL, time.Second).Answer(context.Background(), []byte("x"), "q")
	if err == nil || !strings.Contains(err.Error(), "bad image") {
		t.Errorf("err = %v", err)
	}
}

func TestHTTPAnswerer_EmptyImage(t *testing.T) {
	if _, err := NewHTTPAnswerer("http://127.0.0.1:1", time.Second).Answer(context.Background(), nil, "q"); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestFileCapturer(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string, mod time.Time) {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	write("Notepad-old.png", "old", now.Add(-time.Hour))
	write("notepad-new.jpg", "new", now)
	write("notepad-newest.txt", "not an image", now.Add(time.Hour))
	write("Browser.png", "browser", now.Add(2*time.Hour))

	c := FileCapturer{Dir: dir}
	data, err := c.Capture(context.Background(), "NOTEPAD")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("captured %q, want newest matching image", data)
	}

	if _, err := c.Capture(context.Background(), "terminal"); !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("err = %v, want ErrWindowNotFound", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := (Settings{Endpoint: "http://localhost:8000/vqa"}).Validate(); err != nil {
		t.Errorf("valid settings: %v", err)
	}
	if err := (Settings{Endpoint: "ftp://x"}).Validate(); err == nil {
		t.Error("ftp endpoint should fail")
	}
	if err := (Settings{}).Validate(); err != nil {
		t.Errorf("empty settings should pass: %v", err)
	}
}

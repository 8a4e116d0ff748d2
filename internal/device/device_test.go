package device

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/starford/llamcomm/internal/apperr"
)

// fakePort is an in-memory transport. Reads drain in and then report EOF.
type fakePort struct {
	in     bytes.Buffer
	out    bytes.Buffer
	closed bool
}

func (f *fakePort) Read(p []byte) (int, error) { return f.in.Read(p) }
func (f *fakePort) Write(p []byte) (int, error) {
	return f.out.Write(p)
}
func (f *fakePort) Close() error { f.closed = true; return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestSendCommands(t *testing.T) {
	port := &fakePort{}
	l := New(port, time.Second, quietLogger())
	ctx := context.Background()

	if err := l.SendMouse(ctx, `{"x":10,"y":20}`); err != nil {
		t.Fatalf("SendMouse: %v", err)
	}
	if err := l.SendKeyboard(ctx, `{"keys":"abc"}`); err != nil {
		t.Fatalf("SendKeyboard: %v", err)
	}
	if err := l.SendConfig(ctx, `{"mode":1}`); err != nil {
		t.Fatalf("SendConfig: %v", err)
	}

	want := "{\"x\":10,\"y\":20}\n{\"keys\":\"abc\"}\n{\"mode\":1}\n"
	if got := port.out.String(); got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestSendRejectsInvalidJSON(t *testing.T) {
	port := &fakePort{}
	l := New(port, time.Second, quietLogger())

	err := l.SendMouse(context.Background(), "click here")
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if port.out.Len() != 0 {
		t.Errorf("invalid command was written: %q", port.out.String())
	}
}

func TestReadClipboard_JSON(t *testing.T) {
	port := &fakePort{}
	port.in.WriteString("{\"text\":\"copied\"}\r\n")
	l := New(port, time.Second, quietLogger())

	clip, err := l.ReadClipboard(context.Background())
	if err != nil {
		t.Fatalf("ReadClipboard: %v", err)
	}
	m, ok := clip.JSON.(map[string]any)
	if !ok || m["text"] != "copied" {
		t.Errorf("JSON = %#v", clip.JSON)
	}
	if clip.Text != `{"text":"copied"}` {
		t.Errorf("Text = %q", clip.Text)
	}
}

func TestReadClipboard_PlainText(t *testing.T) {
	port := &fakePort{}
	port.in.WriteString("line one\nline two\n")
	l := New(port, time.Second, quietLogger())

	clip, err := l.ReadClipboard(context.Background())
	if err != nil {
		t.Fatalf("ReadClipboard: %v", err)
	}
	if clip.JSON != nil {
		t.Errorf("JSON = %#v, want nil", clip.JSON)
	}
	if clip.Text != "line one\nline two" {
		t.Errorf("Text = %q", clip.Text)
	}
}

func TestReadClipboard_Empty(t *testing.T) {
	port := &fakePort{}
	port.in.WriteString("  \n")
	l := New(port, time.Second, quietLogger())

	if _, err := l.ReadClipboard(context.Background()); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestReadClipboard_DeadlineTransport(t *testing.T) {
	host, board := net.Pipe()
	defer board.Close()
	l := New(host, 100*time.Millisecond, quietLogger())
	defer l.Close()

	go func() {
		_, _ = board.Write([]byte("hello from board\n"))
	}()

	clip, err := l.ReadClipboard(context.Background())
	if err != nil {
		t.Fatalf("ReadClipboard: %v", err)
	}
	if clip.Text != "hello from board" {
		t.Errorf("Text = %q", clip.Text)
	}
}

func TestClose(t *testing.T) {
	port := &fakePort{}
	l := New(port, time.Second, quietLogger())

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if !port.closed {
		t.Error("transport not closed")
	}
	if err := l.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := l.SendMouse(context.Background(), `{}`); err == nil {
		t.Error("send after close should fail")
	}
}

func TestOpenRequiresPort(t *testing.T) {
	_, err := Open(context.Background(), Settings{}, quietLogger())
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{Port: "/dev/ttyACM0"}.withDefaults()
	if s.BaudRate != 115200 || s.ReadTimeout != time.Second || s.SettleDelay != 2*time.Second {
		t.Errorf("defaults = %+v", s)
	}
	if err := (Settings{BaudRate: -1}).Validate(); err == nil {
		t.Error("negative baud rate should fail validation")
	}
}

// Package device talks to the HID microcontroller over a serial line. The
// board accepts one JSON command per line and echoes clipboard contents back
// as text.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.bug.st/serial"

	"github.com/starford/llamcomm/internal/apperr"
)

// ErrNoData is returned by ReadClipboard when the board sent nothing.
var ErrNoData = errors.New("device: no data")

// Defaults applied by Settings.withDefaults.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = time.Second
	DefaultSettleDelay = 2 * time.Second
)

// Settings configures the serial link.
type Settings struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// Validate implements validation.Validatable.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.BaudRate, validation.Min(0)),
		validation.Field(&s.ReadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&s.SettleDelay, validation.Min(time.Duration(0))),
	)
}

func (s Settings) withDefaults() Settings {
	if s.BaudRate == 0 {
		s.BaudRate = DefaultBaudRate
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.SettleDelay == 0 {
		s.SettleDelay = DefaultSettleDelay
	}
	return s
}

// Clipboard is what the board reported. JSON is set when the payload
// parsed as JSON; Text always holds the trimmed payload.
type Clipboard struct {
	JSON any
	Text string
}

// Link is an open connection to the board. Writes are serialised.
type Link struct {
	rw          io.ReadWriteCloser
	readTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens the serial port and waits SettleDelay for the board to reset.
func Open(ctx context.Context, s Settings, logger *slog.Logger) (*Link, error) {
	if s.Port == "" {
		return nil, fmt.Errorf("%w: device port is required", apperr.ErrValidation)
	}
	s = s.withDefaults()

	port, err := serial.Open(s.Port, &serial.Mode{BaudRate: s.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", s.Port, err)
	}
	if err := port.SetReadTimeout(s.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("device: set read timeout: %w", err)
	}

	t := time.NewTimer(s.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		port.Close()
		return nil, ctx.Err()
	case <-t.C:
	}

	logger.Info("device: port opened", slog.String("port", s.Port), slog.Int("baud_rate", s.BaudRate))
	return New(port, s.ReadTimeout, logger), nil
}

// New wraps an already open transport.
func New(rw io.ReadWriteCloser, readTimeout time.Duration, logger *slog.Logger) *Link {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Link{rw: rw, readTimeout: readTimeout, logger: logger}
}

// SendMouse sends a mouse command.
func (l *Link) SendMouse(ctx context.Context, commands string) error {
	return l.send(ctx, "mouse", commands)
}

// SendKeyboard sends a keyboard command.
func (l *Link) SendKeyboard(ctx context.Context, commands string) error {
	return l.send(ctx, "keyboard", commands)
}

// SendConfig switches the board's HID mode, e.g. {"mode":1} for keyboard
// or {"mode":2} for mouse.
func (l *Link) SendConfig(ctx context.Context, command string) error {
	return l.send(ctx, "config", command)
}

func (l *Link) send(ctx context.Context, kind, payload string) error {
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("%w: %s command is not valid JSON", apperr.ErrInvalidInput, kind)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("device: link closed")
	}
	n, err := l.rw.Write([]byte(payload + "\n"))
	if err != nil {
		return fmt.Errorf("device: write %s command: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("device: write %s command: nothing written", kind)
	}
	l.logger.Debug("device: command sent", slog.String("kind", kind), slog.String("payload", payload))
	return nil
}

// deadliner is implemented by transports that time reads out through
// deadlines rather than a port-level timeout.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// ReadClipboard drains whatever the board has sent until a read times out.
func (l *Link) ReadClipboard(ctx context.Context) (Clipboard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Clipboard{}, fmt.Errorf("device: link closed")
	}

	var buf bytes.Buffer
	chunk := make([]byte, 1024)
	for ctx.Err() == nil {
		if d, ok := l.rw.(deadliner); ok {
			_ = d.SetReadDeadline(time.Now().Add(l.readTimeout))
		}
		n, err := l.rw.Read(chunk)
		buf.Write(chunk[:n])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return Clipboard{}, fmt.Errorf("device: read clipboard: %w", err)
		}
		// A serial read that times out returns no bytes and no error.
		if n == 0 {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return Clipboard{}, err
	}

	text := string(bytes.TrimSpace(buf.Bytes()))
	if text == "" {
		l.logger.Warn("device: no data read")
		return Clipboard{}, ErrNoData
	}
	clip := Clipboard{Text: text}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		clip.JSON = v
	}
	return clip, nil
}

// Close closes the transport. Closing twice is a no-op.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.logger.Info("device: port closed")
	return l.rw.Close()
}

// Package vision asks questions about screenshots. Inference runs behind an
// HTTP endpoint; screenshots are picked up from a directory fed by an
// external capture tool.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/llamcomm/internal/models"
)

// ErrWindowNotFound is returned when no screenshot matches the title.
var ErrWindowNotFound = errors.New("window not found")

// Answerer answers a question about an image.
type Answerer interface {
	Answer(ctx context.Context, image []byte, question string) (string, error)
}

// Capturer returns a screenshot of the window whose title contains the
// given fragment.
type Capturer interface {
	Capture(ctx context.Context, windowTitle string) ([]byte, error)
}

// Settings configures the vision endpoint and capture directory.
type Settings struct {
	Endpoint      string        `yaml:"endpoint"`
	Timeout       time.Duration `yaml:"timeout"`
	ScreenshotDir string        `yaml:"screenshot_dir"`
}

// Validate implements validation.Validatable.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Endpoint, validation.By(httpURL)),
		validation.Field(&s.Timeout, validation.Min(time.Duration(0))),
	)
}

func httpURL(v any) error {
	raw, _ := v.(string)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

type answerRequest struct {
	Image    string `json:"image"`
	Question string `json:"question"`
}

type answerResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// HTTPAnswerer posts {"image": <base64>, "question": ...} to an inference
// endpoint and reads {"answer": ...} back.
type HTTPAnswerer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPAnswerer creates an answerer for endpoint. A zero timeout means 60s.
func NewHTTPAnswerer(endpoint string, timeout time.Duration) *HTTPAnswerer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPAnswerer{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// Answer implements Answerer.
func (a *HTTPAnswerer) Answer(ctx context.Context, image []byte, question string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("vision: image is empty")
	}
	body, err := json.Marshal(answerRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		Question: question,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("vision: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("vision: read response: %w", err)
	}
	var out answerResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("vision: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("vision: HTTP %d: %s", resp.StatusCode, msg)
	}
	return out.Answer, nil
}

// FileCapturer serves the newest screenshot in Dir whose file name contains
// the window title fragment, compared case-insensitively.
type FileCapturer struct {
	Dir string
}

// Capture implements Capturer.
func (c FileCapturer) Capture(_ context.Context, windowTitle string) ([]byte, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("vision: read screenshot dir: %w", err)
	}
	fragment := strings.ToLower(windowTitle)

	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !models.IsImageExt(filepath.Ext(e.Name())) {
			continue
		}
		if !strings.Contains(strings.ToLower(e.Name()), fragment) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = e.Name(), info.ModTime()
		}
	}
	if best == "" {
		return nil, fmt.Errorf("%w: %q", ErrWindowNotFound, windowTitle)
	}
	return os.ReadFile(filepath.Join(c.Dir, best))
}

package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/llamcomm/internal/apperr"
	"github.com/starford/llamcomm/internal/device"
	"github.com/starford/llamcomm/internal/filestore"
	"github.com/starford/llamcomm/internal/mcpserver"
	"github.com/starford/llamcomm/internal/models"
	"github.com/starford/llamcomm/internal/vision"
	"github.com/starford/llamcomm/internal/workflow"
)

// RunMCP serves the record tools over stdio until the client disconnects.
// Logs go to the configured output, which must not be stdout.
func RunMCP(_ context.Context, version string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	be, err := openBackend(app.config, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	logger.Info("MCP server starting", slog.String("store_path", app.config.Store.BasePath))
	return mcpserver.New(be.store, be.db, version).ServeStdio()
}

// AskInput selects the image and question for Ask.
type AskInput struct {
	// ImagePath is read directly when set; otherwise Window picks the
	// newest matching screenshot.
	ImagePath string
	Window    string
	Question  string
	// SaveFolder, when set, stores the answer there as an info record.
	SaveFolder string
}

// Ask sends one image and question to the vision endpoint and returns the
// answer.
func Ask(ctx context.Context, in AskInput, opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	cfg := app.config
	logger := app.newLogger()

	if cfg.Vision.Endpoint == "" {
		return "", fmt.Errorf("%w: vision.endpoint is not configured", apperr.ErrValidation)
	}
	if in.Question == "" {
		return "", fmt.Errorf("%w: question is required", apperr.ErrValidation)
	}

	var img []byte
	switch {
	case in.ImagePath != "":
		img, err = os.ReadFile(in.ImagePath)
	case in.Window != "":
		img, err = vision.FileCapturer{Dir: cfg.Vision.ScreenshotDir}.Capture(ctx, in.Window)
	default:
		return "", fmt.Errorf("%w: an image path or window title is required", apperr.ErrValidation)
	}
	if err != nil {
		return "", fmt.Errorf("load image: %w", err)
	}

	d := workflow.Dispatcher{Vision: vision.NewHTTPAnswerer(cfg.Vision.Endpoint, cfg.Vision.Timeout)}
	out, err := d.Run(ctx, workflow.RoleVisionQA, workflow.Params{Image: img, Question: in.Question})
	if err != nil {
		return "", err
	}
	logger.Debug("vision answer received", slog.Int("image_bytes", len(img)))

	if in.SaveFolder != "" {
		be, err := openBackend(cfg, logger)
		if err != nil {
			return "", err
		}
		defer be.Close()

		text := out.Text
		name := "vision_" + time.Now().UTC().Format("20060102T150405")
		if _, err := be.store.Create(ctx, in.SaveFolder, filestore.CreateInput{
			Filename: name,
			Payload:  models.InfoPayload{Text: &text},
		}); err != nil {
			return "", fmt.Errorf("save answer: %w", err)
		}
		logger.Info("vision answer saved", slog.String("folder", in.SaveFolder), slog.String("filename", name))
	}
	return out.Text, nil
}

// RunWorkflow runs the role loop against the configured store until the
// CEO role has no more commands or ctx is cancelled. Only vision_qa has a
// built-in backend, so callers supply the Inference that answers the other
// roles; there is no CLI command for the loop for that reason.
func RunWorkflow(ctx context.Context, inf workflow.Inference, s workflow.Settings, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if inf == nil {
		return fmt.Errorf("%w: workflow inference is required", apperr.ErrValidation)
	}
	if s.CommFolder == "" {
		return fmt.Errorf("%w: workflow comm folder is required", apperr.ErrValidation)
	}
	logger := app.newLogger()

	be, err := openBackend(app.config, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	capturer := vision.FileCapturer{Dir: app.config.Vision.ScreenshotDir}
	logger.Info("workflow starting", slog.String("comm_folder", s.CommFolder), slog.String("window", s.WindowTitle))
	return workflow.NewController(inf, capturer, be.store, s, logger).Run(ctx)
}

// Device command kinds accepted by SendDevice.
const (
	DeviceMouse    = "mouse"
	DeviceKeyboard = "keyboard"
	DeviceConfig   = "config"
)

// SendDevice opens the configured serial port and sends one JSON command.
// With readBack set it then drains the board's reply as clipboard data.
func SendDevice(ctx context.Context, kind, payload string, readBack bool, opts ...Option) (*device.Clipboard, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger := app.newLogger()

	link, err := device.Open(ctx, app.config.Device, logger)
	if err != nil {
		return nil, err
	}
	defer link.Close()

	switch kind {
	case DeviceMouse:
		err = link.SendMouse(ctx, payload)
	case DeviceKeyboard:
		err = link.SendKeyboard(ctx, payload)
	case DeviceConfig:
		err = link.SendConfig(ctx, payload)
	default:
		return nil, fmt.Errorf("%w: unknown device command kind %q", apperr.ErrInvalidInput, kind)
	}
	if err != nil {
		return nil, err
	}
	if !readBack {
		return nil, nil
	}

	clip, err := link.ReadClipboard(ctx)
	if err != nil {
		return nil, err
	}
	return &clip, nil
}

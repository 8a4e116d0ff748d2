package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/llamcomm/internal/filestore"
	"github.com/starford/llamcomm/internal/models"
	"github.com/starford/llamcomm/internal/vision"
)

// Settings configures a Controller.
type Settings struct {
	// WindowTitle selects the screenshot; empty skips capture.
	WindowTitle string
	Question    string
	Infos       string
	Database    string
	// CommFolder is the store folder that receives vision notes and tasks.
	CommFolder string
}

// Controller runs workflow cycles.
type Controller struct {
	inf      Inference
	capturer vision.Capturer
	store    *filestore.Store
	cfg      Settings
	logger   *slog.Logger
	now      func() time.Time

	cycle int
}

// NewController creates a Controller. capturer may be nil.
func NewController(inf Inference, capturer vision.Capturer, store *filestore.Store, cfg Settings, logger *slog.Logger) *Controller {
	return &Controller{
		inf:      inf,
		capturer: capturer,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Step runs one cycle. done is true when the CEO issued no commands.
func (c *Controller) Step(ctx context.Context) (done bool, err error) {
	c.cycle++
	log := c.logger.With(slog.Int("cycle", c.cycle))

	// The screen check and the human prompt are independent.
	var systemPrompt string
	g, gctx := errgroup.WithContext(ctx)
	if c.capturer != nil && c.cfg.WindowTitle != "" {
		g.Go(func() error {
			return c.observe(gctx)
		})
	}
	g.Go(func() error {
		out, err := c.inf.Run(gctx, RoleHuman, Params{Infos: c.cfg.Infos})
		if err != nil {
			return fmt.Errorf("human: %w", err)
		}
		systemPrompt = out.Text
		return nil
	})
	if err := g.Wait(); err != nil {
		return false, err
	}

	base := Params{
		SystemPrompt: systemPrompt,
		Database:     c.cfg.Database,
		CommFolder:   c.cfg.CommFolder,
	}

	ceo, err := c.inf.Run(ctx, RoleCEO, base)
	if err != nil {
		return false, fmt.Errorf("ceo: %w", err)
	}
	if len(ceo.Commands) == 0 {
		log.Info("workflow: no ceo commands, stopping")
		return true, nil
	}

	base.CommOnly = true
	if _, err := c.inf.Run(ctx, RoleTechLead, base); err != nil {
		return false, fmt.Errorf("tech_lead: %w", err)
	}

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		out, err := c.inf.Run(ctx, RoleProgrammer, base)
		if err != nil {
			return false, fmt.Errorf("programmer: %w", err)
		}
		if err := c.saveTasks(ctx, out.Tasks); err != nil {
			return false, err
		}
		if out.TaskCompleted {
			log.Info("workflow: tasks completed", slog.Int("rounds", round))
			return false, nil
		}
	}
}

// Run repeats Step until the CEO runs out of commands or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	for {
		done, err := c.Step(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if done {
			return nil
		}
	}
}

// observe captures the target window, asks the vision role about it and
// stores the answer as an info record.
func (c *Controller) observe(ctx context.Context) error {
	img, err := c.capturer.Capture(ctx, c.cfg.WindowTitle)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	out, err := c.inf.Run(ctx, RoleVisionQA, Params{Image: img, Question: c.cfg.Question})
	if err != nil {
		return fmt.Errorf("vision_qa: %w", err)
	}
	text := out.Text
	name := fmt.Sprintf("vision_%s_%d", c.now().UTC().Format("20060102T150405"), c.cycle)
	_, err = c.store.Create(ctx, c.cfg.CommFolder, filestore.CreateInput{
		Filename: name,
		Payload:  models.InfoPayload{Text: &text},
	})
	return err
}

func (c *Controller) saveTasks(ctx context.Context, tasks []TaskRecord) error {
	for _, t := range tasks {
		p, err := models.NewPayload(models.KindTask, &t.Content, t.Status, "")
		if err != nil {
			return fmt.Errorf("task %s: %w", t.Filename, err)
		}
		if _, err := c.store.Create(ctx, c.cfg.CommFolder, filestore.CreateInput{
			Filename: t.Filename,
			Payload:  p,
		}); err != nil {
			return fmt.Errorf("task %s: %w", t.Filename, err)
		}
	}
	return nil
}

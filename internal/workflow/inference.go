// Package workflow drives the assistant's role loop: look at the screen,
// let the planning roles decide, then have the programmer work through
// tasks until it reports completion.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/llamcomm/internal/vision"
)

// ErrRoleNotImplemented is returned by Dispatcher for roles without a
// backing model.
var ErrRoleNotImplemented = errors.New("workflow: role not implemented")

// Role names one inference participant.
type Role string

const (
	RoleHuman      Role = "human"
	RoleCEO        Role = "ceo"
	RoleTechLead   Role = "tech_lead"
	RoleProgrammer Role = "programmer"
	RoleVisionQA   Role = "vision_qa"
)

// Params carries the inputs a role may use. Unused fields are ignored.
type Params struct {
	Image        []byte
	Question     string
	Infos        string
	SystemPrompt string
	Database     string
	CommFolder   string
	CommOnly     bool
}

// TaskRecord is a task the programmer wants persisted.
type TaskRecord struct {
	Filename string
	Content  string
	Status   string
}

// Outcome is what a role produced.
type Outcome struct {
	Text          string
	Commands      []string
	Tasks         []TaskRecord
	TaskCompleted bool
}

// Inference runs one role.
type Inference interface {
	Run(ctx context.Context, role Role, p Params) (Outcome, error)
}

// Dispatcher is the default Inference. Only vision_qa is backed.
type Dispatcher struct {
	Vision vision.Answerer
}

// Run implements Inference.
func (d Dispatcher) Run(ctx context.Context, role Role, p Params) (Outcome, error) {
	switch role {
	case RoleVisionQA:
		if d.Vision == nil {
			return Outcome{}, fmt.Errorf("%w: %s has no answerer", ErrRoleNotImplemented, role)
		}
		answer, err := d.Vision.Answer(ctx, p.Image, p.Question)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Text: answer}, nil
	case RoleHuman, RoleCEO, RoleTechLead, RoleProgrammer:
		return Outcome{}, fmt.Errorf("%w: %s", ErrRoleNotImplemented, role)
	}
	return Outcome{}, fmt.Errorf("workflow: unknown role %q", role)
}

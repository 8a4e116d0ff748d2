package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/llamcomm/internal/filestore"
	"github.com/starford/llamcomm/internal/testutil"
)

// scripted answers each role from a queue and records the call order.
type scripted struct {
	mu      sync.Mutex
	calls   []Role
	answers map[Role][]Outcome
	errs    map[Role]error
}

func (s *scripted) Run(_ context.Context, role Role, _ Params) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, role)
	if err := s.errs[role]; err != nil {
		return Outcome{}, err
	}
	q := s.answers[role]
	if len(q) == 0 {
		return Outcome{}, nil
	}
	out := q[0]
	if len(q) > 1 {
		s.answers[role] = q[1:]
	}
	return out, nil
}

func (s *scripted) count(role Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.calls {
		if r == role {
			n++
		}
	}
	return n
}

type staticCapturer struct{ img []byte }

func (c staticCapturer) Capture(context.Context, string) ([]byte, error) { return c.img, nil }

type fakeAnswerer struct{ answer string }

func (a fakeAnswerer) Answer(context.Context, []byte, string) (string, error) { return a.answer, nil }

func testStore(t *testing.T) (*filestore.Store, string) {
	t.Helper()
	return testutil.TestStore(t)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestStep_FullCycle(t *testing.T) {
	store, dir := testStore(t)
	inf := &scripted{answers: map[Role][]Outcome{
		RoleVisionQA: {{Text: "an editor is open"}},
		RoleHuman:    {{Text: "you are my assistant"}},
		RoleCEO:      {{Commands: []string{"build login"}}},
		RoleProgrammer: {
			{Tasks: []TaskRecord{{Filename: "login.txt", Content: "write handler", Status: "pending"}}},
			{Tasks: []TaskRecord{{Filename: "login.txt", Content: "write handler", Status: "done"}}, TaskCompleted: true},
		},
	}}

	c := NewController(inf, staticCapturer{img: []byte("png")}, store, Settings{
		WindowTitle: "Notepad",
		Question:    "what is on screen?",
		CommFolder:  "llam_comm",
	}, quietLogger())

	done, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if done {
		t.Error("cycle with ceo commands should not report done")
	}
	if n := inf.count(RoleProgrammer); n != 2 {
		t.Errorf("programmer rounds = %d, want 2", n)
	}
	if n := inf.count(RoleTechLead); n != 1 {
		t.Errorf("tech_lead calls = %d, want 1", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, "llam_comm", "login.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "STATUS:done\nwrite handler" {
		t.Errorf("task = %q", data)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "llam_comm"))
	var vision string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "vision_") {
			b, _ := os.ReadFile(filepath.Join(dir, "llam_comm", e.Name()))
			vision = string(b)
		}
	}
	if vision != "an editor is open" {
		t.Errorf("vision note = %q", vision)
	}
}

func TestStep_NoCommandsStops(t *testing.T) {
	store, _ := testStore(t)
	inf := &scripted{answers: map[Role][]Outcome{}}
	c := NewController(inf, nil, store, Settings{CommFolder: "c"}, quietLogger())

	done, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !done {
		t.Error("expected done when ceo has no commands")
	}
	if inf.count(RoleTechLead) != 0 || inf.count(RoleProgrammer) != 0 {
		t.Errorf("later roles ran: %v", inf.calls)
	}
}

func TestStep_RoleErrorPropagates(t *testing.T) {
	store, _ := testStore(t)
	boom := errors.New("boom")
	inf := &scripted{
		answers: map[Role][]Outcome{RoleCEO: {{Commands: []string{"x"}}}},
		errs:    map[Role]error{RoleTechLead: boom},
	}
	c := NewController(inf, nil, store, Settings{CommFolder: "c"}, quietLogger())

	if _, err := c.Step(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRun_StopsWhenDone(t *testing.T) {
	store, _ := testStore(t)
	inf := &scripted{answers: map[Role][]Outcome{
		RoleCEO:        {{Commands: []string{"one"}}, {}},
		RoleProgrammer: {{TaskCompleted: true}},
	}}
	c := NewController(inf, nil, store, Settings{CommFolder: "c"}, quietLogger())

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := inf.count(RoleCEO); n != 2 {
		t.Errorf("ceo calls = %d, want 2", n)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	store, _ := testStore(t)
	inf := &scripted{answers: map[Role][]Outcome{
		RoleCEO:        {{Commands: []string{"forever"}}},
		RoleProgrammer: {{}},
	}}
	c := NewController(inf, nil, store, Settings{CommFolder: "c"}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx); err != nil {
		t.Errorf("Run on cancelled ctx = %v, want nil", err)
	}
}

func TestDispatcher(t *testing.T) {
	d := Dispatcher{Vision: fakeAnswerer{answer: "a cat"}}

	out, err := d.Run(context.Background(), RoleVisionQA, Params{Image: []byte("x"), Question: "what?"})
	if err != nil || out.Text != "a cat" {
		t.Errorf("vision_qa = %+v, %v", out, err)
	}
	for _, r := range []Role{RoleHuman, RoleCEO, RoleTechLead, RoleProgrammer} {
		if _, err := d.Run(context.Background(), r, Params{}); !errors.Is(err, ErrRoleNotImplemented) {
			t.Errorf("%s: err = %v", r, err)
		}
	}
	if _, err := (Dispatcher{}).Run(context.Background(), RoleVisionQA, Params{}); !errors.Is(err, ErrRoleNotImplemented) {
		t.Errorf("vision without answerer: %v", err)
	}
}

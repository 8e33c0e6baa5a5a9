// Package automation drives what happens after a report run completes:
// viewing, sharing, opening a browser, mailing the report, and optionally
// terminating the process.
package automation

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aviary-ai/aviary/internal/report"
)

// Action is the follow-up taken when a run completes.
type Action string

const (
	ActionNone    Action = "none"
	ActionView    Action = "view"
	ActionShare   Action = "share"
	ActionBrowser Action = "browser"
	ActionEmail   Action = "email"
)

// Spec describes the requested follow-up. Email is a request-embedded
// destination: when set it overrides NextAction entirely, the report is
// mailed and the process terminates immediately, whatever else was asked
// for. The email action instead mails DefaultEmail, the configured
// destination, and terminates only when Return is set.
type Spec struct {
	NextAction   Action
	Email        string
	DefaultEmail string
	Return       bool
}

// Viewer renders a completed report locally.
type Viewer interface {
	View(snap report.Snapshot) error
}

// Sharer pushes a completed report to an external channel.
type Sharer interface {
	Share(snap report.Snapshot) error
}

// Browser opens a completed report in the user's browser.
type Browser interface {
	OpenBrowser(snap report.Snapshot) error
}

// Mailer sends a completed report to one address.
type Mailer interface {
	Send(to string, snap report.Snapshot) error
}

// Deps are the injected backends for a trigger. Nil backends make the
// matching action a logged no-op.
type Deps struct {
	Viewer  Viewer
	Sharer  Sharer
	Browser Browser
	Mailer  Mailer
	Logger  *slog.Logger

	// Exit terminates the process; defaults to os.Exit.
	Exit func(code int)
	// ShareGrace and EmailGrace delay termination so async deliveries
	// can flush. Defaults 2s and 10s.
	ShareGrace time.Duration
	EmailGrace time.Duration
}

// Trigger fires the follow-up for exactly one run, at most once.
type Trigger struct {
	spec Spec
	deps Deps
	once sync.Once
}

func New(spec Spec, deps Deps) *Trigger {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Exit == nil {
		deps.Exit = os.Exit
	}
	if deps.ShareGrace == 0 {
		deps.ShareGrace = 2 * time.Second
	}
	if deps.EmailGrace == 0 {
		deps.EmailGrace = 10 * time.Second
	}
	return &Trigger{spec: spec, deps: deps}
}

// Fire runs the follow-up. Safe to call from multiple completion paths;
// only the first call acts.
func (t *Trigger) Fire(snap report.Snapshot) {
	t.once.Do(func() { t.run(snap) })
}

func (t *Trigger) run(snap report.Snapshot) {
	log := t.deps.Logger

	// A request-embedded destination is a complete instruction: mail it
	// and terminate, skipping NextAction. The send is synchronous, so no
	// grace is needed.
	if t.spec.Email != "" {
		t.mail(t.spec.Email, snap)
		t.deps.Exit(0)
		return
	}

	var grace time.Duration
	switch t.spec.NextAction {
	case ActionView:
		if t.deps.Viewer != nil {
			if err := t.deps.Viewer.View(snap); err != nil {
				log.Error("failed to view report", "run", snap.ID, "error", err)
			}
		}
	case ActionShare:
		if t.deps.Sharer != nil {
			if err := t.deps.Sharer.Share(snap); err != nil {
				log.Error("failed to share report", "run", snap.ID, "error", err)
			}
			grace = t.deps.ShareGrace
		}
	case ActionBrowser:
		if t.deps.Browser != nil {
			if err := t.deps.Browser.OpenBrowser(snap); err != nil {
				log.Error("failed to open report in browser", "run", snap.ID, "error", err)
			}
			grace = t.deps.ShareGrace
		}
	case ActionEmail:
		// The email action needs a configured destination; without one
		// there is nothing to send and nothing else to do.
		if t.spec.DefaultEmail == "" {
			log.Warn("email action without a destination", "run", snap.ID)
			break
		}
		t.mail(t.spec.DefaultEmail, snap)
		grace = t.deps.EmailGrace
	}

	if t.spec.Return {
		t.leave(grace)
	}
}

func (t *Trigger) mail(to string, snap report.Snapshot) {
	log := t.deps.Logger
	if t.deps.Mailer == nil {
		log.Warn("email requested but no mailer configured", "run", snap.ID)
		return
	}
	if err := t.deps.Mailer.Send(to, snap); err != nil {
		log.Error("failed to mail report", "run", snap.ID, "to", to, "error", err)
		return
	}
	log.Info("report mailed", "run", snap.ID, "to", to)
}

func (t *Trigger) leave(grace time.Duration) {
	if grace > 0 {
		time.Sleep(grace)
	}
	t.deps.Exit(0)
}

// Package guard gates access to protected regions based on the session
// state and the capability set resolved from the user's roles.
package guard

import (
	"context"
	"sync"

	"github.com/classpad/sessioncore"
	"github.com/classpad/sessioncore/access"
	"github.com/cccteam/logger"
	"go.opentelemetry.io/otel"
)

const name = "github.com/classpad/sessioncore/guard"

// State is the guard's observable state.
type State int

const (
	// StateInitializing means the session record has not been loaded yet.
	// Callers render a neutral loading view here; the guard never reports
	// denied before initialization completes.
	StateInitializing State = iota
	StateDenied
	StateGranted
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateDenied:
		return "DENIED"
	case StateGranted:
		return "GRANTED"
	default:
		return "UNKNOWN"
	}
}

// Reason explains a denial.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonNotLoggedIn denies an unauthenticated session.
	ReasonNotLoggedIn
	// ReasonTokenExpired denies a session whose token has expired.
	ReasonTokenExpired
	// ReasonInsufficientRole denies an authenticated but under-privileged
	// user. The redirect target differs from the unauthenticated case: the
	// user is sent to the landing page, not back to login.
	ReasonInsufficientRole
)

// Decision is the outcome of one guard evaluation.
type Decision struct {
	State      State
	Reason     Reason
	RedirectTo string
	Message    string
}

const (
	defaultLoginURL   = "/login"
	defaultLandingURL = "/"
)

// NotifyFunc receives the user-visible denial notices. It must not block.
type NotifyFunc func(ctx context.Context, reason Reason, message string)

// Guard evaluates whether the current session may enter a protected region
// that requires one of a set of role classes. It re-evaluates on every
// session state change, so a token expiring while the guarded view is open
// flips the decision without waiting for navigation.
type Guard struct {
	manager    *sessioncore.Manager
	loginURL   string
	landingURL string
	notify     NotifyFunc
	onChange   func(Decision)

	mu       sync.Mutex
	required []access.Role
	mounted  bool
	last     Decision
	unsub    func()
}

// Option defines a function signature for setting guard options.
type Option func(*Guard)

// WithLoginURL sets the redirect target for unauthenticated or expired
// sessions. (default: /login)
func WithLoginURL(u string) Option {
	return Option(func(g *Guard) {
		g.loginURL = u
	})
}

// WithLandingURL sets the redirect target for authenticated users lacking a
// required role. (default: /)
func WithLandingURL(u string) Option {
	return Option(func(g *Guard) {
		g.landingURL = u
	})
}

// WithNotifier sets the callback for user-visible denial notices.
func WithNotifier(fn NotifyFunc) Option {
	return Option(func(g *Guard) {
		g.notify = fn
	})
}

// WithOnChange sets a callback fired whenever the guard's decision changes.
func WithOnChange(fn func(Decision)) Option {
	return Option(func(g *Guard) {
		g.onChange = fn
	})
}

// New creates a guard requiring one of the given role classes. An empty
// required set admits any authenticated session.
func New(manager *sessioncore.Manager, required []access.Role, options ...Option) *Guard {
	g := &Guard{
		manager:    manager,
		required:   required,
		loginURL:   defaultLoginURL,
		landingURL: defaultLandingURL,
		last:       Decision{State: StateInitializing},
	}
	for _, opt := range options {
		opt(g)
	}

	return g
}

// Mount initializes the session state and produces the first real decision.
// Until it returns, State reports StateInitializing; the guard never skips
// ahead to a denial before storage has been read. Mount also subscribes to
// session changes so later mutations re-evaluate the decision.
func (g *Guard) Mount(ctx context.Context) (Decision, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Guard.Mount()")
	defer span.End()

	if err := g.manager.Initialize(ctx); err != nil {
		return Decision{State: StateInitializing}, err
	}

	g.mu.Lock()
	if !g.mounted {
		g.mounted = true
		g.unsub = g.manager.Subscribe(func() {
			g.reevaluate(context.Background())
		})
	}
	g.mu.Unlock()

	return g.Evaluate(ctx), nil
}

// Unmount releases the session subscription.
func (g *Guard) Unmount() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unsub != nil {
		g.unsub()
		g.unsub = nil
	}
	g.mounted = false
	g.last = Decision{State: StateInitializing}
}

// SetRequiredRoles replaces the required role set and re-evaluates.
func (g *Guard) SetRequiredRoles(ctx context.Context, required []access.Role) Decision {
	g.mu.Lock()
	g.required = required
	g.mu.Unlock()

	return g.reevaluate(ctx)
}

// State returns the last decision's state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.last.State
}

// Decision returns the last decision.
func (g *Guard) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.last
}

// Evaluate computes the decision for the current session state. Before
// Mount has completed it reports StateInitializing.
func (g *Guard) Evaluate(ctx context.Context) Decision {
	g.mu.Lock()
	mounted := g.mounted
	required := append([]access.Role(nil), g.required...)
	g.mu.Unlock()

	if !mounted {
		return Decision{State: StateInitializing}
	}

	decision := g.decide(required)

	g.mu.Lock()
	changed := decision != g.last
	g.last = decision
	g.mu.Unlock()

	if changed && decision.State == StateDenied {
		logger.Ctx(ctx).Infof("access denied: %s", decision.Message)
		if g.notify != nil {
			g.notify(ctx, decision.Reason, decision.Message)
		}
	}
	if changed && g.onChange != nil {
		g.onChange(decision)
	}

	return decision
}

func (g *Guard) decide(required []access.Role) Decision {
	switch {
	case !g.manager.IsLoggedIn():
		return Decision{
			State:      StateDenied,
			Reason:     ReasonNotLoggedIn,
			RedirectTo: g.loginURL,
			Message:    "sign in to continue",
		}
	case g.manager.IsTokenExpired():
		return Decision{
			State:      StateDenied,
			Reason:     ReasonTokenExpired,
			RedirectTo: g.loginURL,
			Message:    "your session has expired, sign in again",
		}
	case !satisfies(g.manager.Permissions(), required):
		return Decision{
			State:      StateDenied,
			Reason:     ReasonInsufficientRole,
			RedirectTo: g.landingURL,
			Message:    "you do not have access to this area",
		}
	default:
		return Decision{State: StateGranted}
	}
}

func (g *Guard) reevaluate(ctx context.Context) Decision {
	return g.Evaluate(ctx)
}

// satisfies reports whether the capability set classifies as one of the
// required role classes. Classification goes through the capability
// predicates, not the raw role strings; the capability table stays the
// single source of truth.
func satisfies(caps access.CapabilitySet, required []access.Role) bool {
	if len(required) == 0 {
		return true
	}

	for _, role := range required {
		switch role {
		case access.RoleAdmin:
			if access.IsAdmin(caps) {
				return true
			}
		case access.RoleTeacher:
			if access.IsTeacher(caps) {
				return true
			}
		case access.RoleStudent:
			if access.IsStudent(caps) {
				return true
			}
		case access.RoleGuest:
			return true
		}
	}

	return false
}

package guard

import (
	"context"
	"testing"
	"time"

	"github.com/classpad/sessioncore"
	"github.com/classpad/sessioncore/access"
	"github.com/classpad/sessioncore/sessionstore"
	"github.com/classpad/sessioncore/sessiontypes"
)

func teacherUser() sessiontypes.User {
	return sessiontypes.User{
		ID:       "u-100",
		Username: "t1",
		Email:    "t1@classpad.test",
		Roles:    []access.Role{access.RoleTeacher},
	}
}

func token(expiry time.Time) sessiontypes.Token {
	return sessiontypes.Token{
		Value:     "tok-abc",
		GrantedAt: expiry.Add(-time.Hour),
		ExpiredAt: expiry,
		Scope:     "portal",
	}
}

func loggedInManager(t *testing.T, user sessiontypes.User, expiry time.Time, now *time.Time) *sessioncore.Manager {
	t.Helper()

	ctx := context.Background()
	m := sessioncore.NewManager(sessionstore.NewMemory(), sessioncore.WithClock(func() time.Time { return *now }))
	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := m.Login(ctx, user, token(expiry)); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	return m
}

func TestGuard_initializingBeforeMount(t *testing.T) {
	t.Parallel()

	m := sessioncore.NewManager(sessionstore.NewMemory())
	g := New(m, []access.Role{access.RoleTeacher})

	if got := g.State(); got != StateInitializing {
		t.Errorf("State() = %v before Mount, want %v", got, StateInitializing)
	}
	if got := g.Evaluate(context.Background()); got.State != StateInitializing {
		t.Errorf("Evaluate() = %v before Mount, want %v", got.State, StateInitializing)
	}
}

func TestGuard_decisions(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		required     []access.Role
		loggedIn     bool
		roles        []access.Role
		expiry       time.Time
		wantState    State
		wantReason   Reason
		wantRedirect string
	}{
		{
			name:         "unauthenticated goes to login",
			required:     []access.Role{access.RoleTeacher},
			loggedIn:     false,
			wantState:    StateDenied,
			wantReason:   ReasonNotLoggedIn,
			wantRedirect: "/login",
		},
		{
			name:      "teacher admitted to teacher area",
			required:  []access.Role{access.RoleTeacher},
			loggedIn:  true,
			roles:     []access.Role{access.RoleTeacher},
			expiry:    now.Add(10 * time.Minute),
			wantState: StateGranted,
		},
		{
			name:         "teacher denied admin area goes to landing",
			required:     []access.Role{access.RoleAdmin},
			loggedIn:     true,
			roles:        []access.Role{access.RoleTeacher},
			expiry:       now.Add(10 * time.Minute),
			wantState:    StateDenied,
			wantReason:   ReasonInsufficientRole,
			wantRedirect: "/",
		},
		{
			name:         "expired token goes to login, not landing",
			required:     []access.Role{access.RoleTeacher},
			loggedIn:     true,
			roles:        []access.Role{access.RoleTeacher},
			expiry:       now.Add(-time.Minute),
			wantState:    StateDenied,
			wantReason:   ReasonTokenExpired,
			wantRedirect: "/login",
		},
		{
			name:      "empty requirement admits any authenticated user",
			required:  nil,
			loggedIn:  true,
			roles:     []access.Role{access.RoleStudent},
			expiry:    now.Add(10 * time.Minute),
			wantState: StateGranted,
		},
		{
			name:      "admin satisfies an admin-or-teacher requirement",
			required:  []access.Role{access.RoleAdmin, access.RoleTeacher},
			loggedIn:  true,
			roles:     []access.Role{access.RoleAdmin},
			expiry:    now.Add(10 * time.Minute),
			wantState: StateGranted,
		},
		{
			name:      "guest requirement admits anyone authenticated",
			required:  []access.Role{access.RoleGuest},
			loggedIn:  true,
			roles:     nil,
			expiry:    now.Add(10 * time.Minute),
			wantState: StateGranted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			clock := now

			var m *sessioncore.Manager
			if tt.loggedIn {
				user := teacherUser()
				user.Roles = tt.roles
				m = loggedInManager(t, user, tt.expiry, &clock)
			} else {
				m = sessioncore.NewManager(sessionstore.NewMemory(), sessioncore.WithClock(func() time.Time { return clock }))
			}

			g := New(m, tt.required)
			decision, err := g.Mount(ctx)
			if err != nil {
				t.Fatalf("Mount() error = %v", err)
			}

			if decision.State != tt.wantState {
				t.Errorf("decision.State = %v, want %v", decision.State, tt.wantState)
			}
			if decision.Reason != tt.wantReason {
				t.Errorf("decision.Reason = %v, want %v", decision.Reason, tt.wantReason)
			}
			if decision.RedirectTo != tt.wantRedirect {
				t.Errorf("decision.RedirectTo = %q, want %q", decision.RedirectTo, tt.wantRedirect)
			}
		})
	}
}

func TestGuard_reevaluatesOnSessionChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now

	m := loggedInManager(t, teacherUser(), now.Add(10*time.Minute), &clock)

	var decisions []Decision
	g := New(m, []access.Role{access.RoleTeacher}, WithOnChange(func(d Decision) {
		decisions = append(decisions, d)
	}))

	decision, err := g.Mount(ctx)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if decision.State != StateGranted {
		t.Fatalf("decision.State = %v, want %v", decision.State, StateGranted)
	}

	// the session ends while the guarded view is open
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if got := g.State(); got != StateDenied {
		t.Errorf("State() = %v after logout, want %v", got, StateDenied)
	}
	if got := g.Decision().Reason; got != ReasonNotLoggedIn {
		t.Errorf("Decision().Reason = %v, want %v", got, ReasonNotLoggedIn)
	}
	if len(decisions) != 2 {
		t.Fatalf("onChange fired %d times, want 2 (grant, then denial)", len(decisions))
	}
}

func TestGuard_notifierFiresOnceOnDenial(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now

	m := loggedInManager(t, teacherUser(), now.Add(10*time.Minute), &clock)

	notices := 0
	g := New(m, []access.Role{access.RoleAdmin},
		WithLandingURL("/home"),
		WithNotifier(func(_ context.Context, reason Reason, _ string) {
			notices++
			if reason != ReasonInsufficientRole {
				t.Errorf("notify reason = %v, want %v", reason, ReasonInsufficientRole)
			}
		}),
	)

	decision, err := g.Mount(ctx)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if decision.RedirectTo != "/home" {
		t.Errorf("decision.RedirectTo = %q, want %q", decision.RedirectTo, "/home")
	}

	// an unchanged denial does not renotify
	g.Evaluate(ctx)
	if notices != 1 {
		t.Errorf("notifier fired %d times, want 1", notices)
	}
}

func TestGuard_setRequiredRoles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now

	m := loggedInManager(t, teacherUser(), now.Add(10*time.Minute), &clock)

	g := New(m, []access.Role{access.RoleAdmin})
	decision, err := g.Mount(ctx)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if decision.State != StateDenied {
		t.Fatalf("decision.State = %v, want %v", decision.State, StateDenied)
	}

	decision = g.SetRequiredRoles(ctx, []access.Role{access.RoleTeacher})
	if decision.State != StateGranted {
		t.Errorf("decision.State = %v after requirement change, want %v", decision.State, StateGranted)
	}
}

func TestGuard_unmountStopsReevaluation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now

	m := loggedInManager(t, teacherUser(), now.Add(10*time.Minute), &clock)

	g := New(m, []access.Role{access.RoleTeacher})
	if _, err := g.Mount(ctx); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	g.Unmount()

	if got := g.State(); got != StateInitializing {
		t.Errorf("State() = %v after Unmount, want %v", got, StateInitializing)
	}

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if got := g.State(); got != StateInitializing {
		t.Errorf("State() = %v after logout on unmounted guard, want %v", got, StateInitializing)
	}
}

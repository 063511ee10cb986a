package guard

import (
	"net/http"
	"strings"

	"github.com/classpad/sessioncore"
	"github.com/classpad/sessioncore/access"
	"github.com/cccteam/httpio"
	"go.opentelemetry.io/otel"
)

// Protect wraps a protected subtree. The session record is loaded before
// any decision is made, so a request can never be denied off uninitialized
// state; denials redirect browsers to the decision's fallback location and
// answer API clients with the matching status.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return handle(func(w http.ResponseWriter, r *http.Request) error {
		ctx, span := otel.Tracer(name).Start(r.Context(), "Guard.Protect()")
		defer span.End()

		decision, err := g.Mount(ctx)
		if err != nil {
			return httpio.NewEncoder(w).ClientMessage(ctx, err)
		}

		switch decision.State {
		case StateGranted:
			next.ServeHTTP(w, r.WithContext(ctx))

			return nil
		case StateDenied, StateInitializing:
			return deny(w, r, decision)
		}

		return nil
	})
}

// RequireRoles returns middleware admitting only sessions that classify as
// one of the given role classes. It is the plain form of the guard for
// routers that already hold an initialized manager.
func RequireRoles(manager *sessioncore.Manager, roles ...access.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		g := New(manager, roles)

		return g.Protect(next)
	}
}

func deny(w http.ResponseWriter, r *http.Request, decision Decision) error {
	if wantsJSON(r) {
		ctx := r.Context()
		if decision.Reason == ReasonInsufficientRole {
			return httpio.NewEncoder(w).ClientMessage(ctx, httpio.NewForbiddenMessage(decision.Message))
		}

		return httpio.NewEncoder(w).ClientMessage(ctx, httpio.NewUnauthorizedMessage(decision.Message))
	}

	http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)

	return nil
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")

	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

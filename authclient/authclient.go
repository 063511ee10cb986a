// Package authclient talks to the platform's login and token-validation
// endpoints. It owns no session state; callers hand its results to the
// session manager.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/classpad/sessioncore/access"
	"github.com/classpad/sessioncore/sessiontypes"
	"github.com/cccteam/logger"
	"github.com/go-playground/errors/v5"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
)

const name = "github.com/classpad/sessioncore/authclient"

// DefaultTimeout bounds a login attempt. Hitting it is a distinct failure
// from a rejected credential.
const DefaultTimeout = 10 * time.Second

const (
	loginPath    = "/api/auth/login"
	validatePath = "/api/auth/validate"
)

// Reason classifies a login failure.
type Reason int

const (
	// ReasonRejected means the endpoint refused the credentials.
	ReasonRejected Reason = iota
	// ReasonTimeout means the endpoint did not answer in time.
	ReasonTimeout
	// ReasonUnavailable means the endpoint answered with a server fault or
	// could not be reached at all.
	ReasonUnavailable
)

// LoginError is a typed login failure with a human-readable reason.
type LoginError struct {
	Reason  Reason
	Message string
	err     error
}

func (e *LoginError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("login failed: %s: %v", e.Message, e.err)
	}

	return fmt.Sprintf("login failed: %s", e.Message)
}

func (e *LoginError) Unwrap() error {
	return e.err
}

// IsTimeout reports whether err is a login timeout.
func IsTimeout(err error) bool {
	var le *LoginError

	return errors.As(err, &le) && le.Reason == ReasonTimeout
}

// IsRejected reports whether err is a credential rejection.
func IsRejected(err error) bool {
	var le *LoginError

	return errors.As(err, &le) && le.Reason == ReasonRejected
}

// Client calls the authentication endpoints of one deployment.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appKey     string
	timeout    time.Duration
}

// Option defines a function signature for setting client options.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return Option(func(cl *Client) {
		cl.httpClient = c
	})
}

// WithTimeout sets the login timeout. (default: 10s)
func WithTimeout(d time.Duration) Option {
	return Option(func(cl *Client) {
		cl.timeout = d
	})
}

// New creates a client for the deployment at baseURL, authenticating calls
// with the given application key.
func New(baseURL, appKey string, options ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    baseURL,
		appKey:     appKey,
		timeout:    DefaultTimeout,
	}
	for _, opt := range options {
		opt(c)
	}

	return c
}

type loginRequest struct {
	AppKey   string `json:"app_key"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User  wireUser  `json:"user"`
	Token wireToken `json:"token"`
}

type wireUser struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Avatar   string   `json:"avatar"`
	Roles    []string `json:"roles"`
}

// wireToken carries the token value under "token", unlike the persisted
// record which stores it under "value".
type wireToken struct {
	Token     string    `json:"token"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiredAt time.Time `json:"expired_at"`
	Scope     string    `json:"scope"`
}

type failureResponse struct {
	Message string `json:"message"`
}

// Login authenticates the credentials and returns the granted user and
// token. Failures carry a *LoginError distinguishing rejection, timeout,
// and endpoint faults; no session state is mutated here.
func (c *Client) Login(ctx context.Context, username, password string) (sessiontypes.User, sessiontypes.Token, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.Login()")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(loginRequest{AppKey: c.appKey, Username: username, Password: password})
	if err != nil {
		return sessiontypes.User{}, sessiontypes.Token{}, errors.Wrap(err, "json.Marshal()")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return sessiontypes.User{}, sessiontypes.Token{}, errors.Wrap(err, "http.NewRequestWithContext()")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.Must(uuid.NewV4()).String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return sessiontypes.User{}, sessiontypes.Token{}, &LoginError{Reason: ReasonTimeout, Message: "login timed out", err: err}
		}

		return sessiontypes.User{}, sessiontypes.Token{}, &LoginError{Reason: ReasonUnavailable, Message: "login service unreachable", err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure failureResponse
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		if failure.Message == "" {
			failure.Message = http.StatusText(resp.StatusCode)
		}
		reason := ReasonRejected
		if resp.StatusCode >= 500 {
			reason = ReasonUnavailable
		}

		return sessiontypes.User{}, sessiontypes.Token{}, &LoginError{Reason: reason, Message: failure.Message}
	}

	var payload loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return sessiontypes.User{}, sessiontypes.Token{}, errors.Wrap(err, "json.Decoder.Decode()")
	}

	user := sessiontypes.User{
		ID:       payload.User.ID,
		Username: payload.User.Username,
		Email:    payload.User.Email,
		Avatar:   payload.User.Avatar,
	}
	for _, r := range payload.User.Roles {
		user.Roles = append(user.Roles, access.ParseRole(r))
	}

	token := sessiontypes.Token{
		Value:     payload.Token.Token,
		GrantedAt: payload.Token.GrantedAt,
		ExpiredAt: payload.Token.ExpiredAt,
		Scope:     payload.Token.Scope,
	}
	backfillFromJWT(ctx, &token)

	return user, token, nil
}

// ValidateToken asks the validation endpoint whether the token is still
// accepted. Used opportunistically; the guard does not call this on every
// check. A definitive refusal returns (false, nil); transport faults
// return an error so callers do not confuse outage with revocation.
func (c *Client) ValidateToken(ctx context.Context, token sessiontypes.Token) (bool, error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Client.ValidateToken()")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Carry the bearer credential with the oauth2 transport rather than
	// hand-rolling the Authorization header.
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), src)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+validatePath, http.NoBody)
	if err != nil {
		return false, errors.Wrap(err, "http.NewRequestWithContext()")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "http.Client.Do()")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, errors.Newf("token validation: unexpected status %d", resp.StatusCode)
	}
}

// backfillFromJWT fills a missing expiry from the token's own claims when
// the endpoint returned a JWT without explicit timestamps. The claims are
// read unverified; validity is the server's problem, we only need the
// schedule.
func backfillFromJWT(ctx context.Context, token *sessiontypes.Token) {
	if !token.ExpiredAt.IsZero() {
		return
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token.Value, &claims); err != nil {
		return
	}
	if claims.ExpiresAt == nil {
		return
	}

	token.ExpiredAt = claims.ExpiresAt.Time
	if token.GrantedAt.IsZero() && claims.IssuedAt != nil {
		token.GrantedAt = claims.IssuedAt.Time
	}
	logger.Ctx(ctx).Infof("token expiry backfilled from JWT claims: %s", token.ExpiredAt)
}

// Package session drives the portal authentication endpoints and keeps the
// resulting token pair in the injected credential store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/campus/portal/internal/apiclient"
	"github.com/campus/portal/internal/endpoint"
	"github.com/campus/portal/internal/infrastructure/credential"
	"go.uber.org/zap"
)

var (
	// ErrNoToken means an auth response carried no access token.
	ErrNoToken = errors.New("response carried no access token")
	// ErrNotLoggedIn means no access token is stored.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrNoRefreshToken means no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token stored")
)

// Credentials are the login form fields.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up form.
type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is the authentication surface of the portal.
type Service struct {
	client apiclient.Doer
	creds  credential.Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates a session service. client must send through creds so that a
// 401 anywhere clears the same store.
func New(client apiclient.Doer, creds credential.Store, opts ...Option) *Service {
	s := &Service{
		client: client,
		creds:  creds,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login exchanges credentials for a token pair and stores it.
func (s *Service) Login(ctx context.Context, c Credentials) (*User, error) {
	resp, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: endpoint.LoginPath.Path(), Body: c})
	if err != nil {
		if apiclient.IsKind(err, apiclient.KindUnauthenticated) {
			return nil, apiclient.NewError(apiclient.KindUnauthenticated, "login", "invalid email or password", err)
		}
		return nil, err
	}

	body, err := parseAuthBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if body.pair.Access == "" {
		return nil, fmt.Errorf("login: %w", ErrNoToken)
	}
	if err := s.creds.Set(ctx, body.pair); err != nil {
		return nil, fmt.Errorf("storing credentials: %w", err)
	}

	user := body.user
	if user == nil {
		if user, err = s.CurrentUser(ctx); err != nil {
			if clearErr := s.creds.Clear(context.WithoutCancel(ctx)); clearErr != nil {
				s.logger.Warn("Failed to drop tokens after login", zap.Error(clearErr))
			}
			return nil, err
		}
	}
	s.logger.Info("Logged in", zap.String("email", user.Email), zap.String("role", user.RoleName))
	return user, nil
}

// Register creates an account. Tokens returned with the account are stored;
// a server that returns none leaves the caller to Login.
func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	resp, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: endpoint.RegisterPath.Path(), Body: r})
	if err != nil {
		return nil, err
	}

	body, err := parseAuthBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if body.pair.Access != "" {
		if err := s.creds.Set(ctx, body.pair); err != nil {
			return nil, fmt.Errorf("storing credentials: %w", err)
		}
	}

	user := body.user
	if user == nil {
		user = &User{Email: r.Email, Name: r.Name, FirstName: r.FirstName, LastName: r.LastName, RoleName: r.Role}
	}
	s.logger.Info("Registered", zap.String("email", user.Email), zap.Bool("signed_in", body.pair.Access != ""))
	return user, nil
}

// Refresh trades the stored refresh token for a new access token. The old
// refresh token is kept when the server does not rotate it.
func (s *Service) Refresh(ctx context.Context) error {
	pair, err := s.creds.Get(ctx)
	if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	if pair.Refresh == "" {
		return ErrNoRefreshToken
	}

	resp, err := s.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   endpoint.RefreshPath.Path(),
		Body:   map[string]string{"refresh": pair.Refresh},
	})
	if err != nil {
		return err
	}

	body, err := parseAuthBody(resp.Body)
	if err != nil {
		return err
	}
	if body.pair.Access == "" {
		return fmt.Errorf("refresh: %w", ErrNoToken)
	}
	next := credential.Pair{Access: body.pair.Access, Refresh: body.pair.Refresh}
	if next.Refresh == "" {
		next.Refresh = pair.Refresh
	}
	if err := s.creds.Set(ctx, next); err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}
	s.logger.Debug("Access token refreshed")
	return nil
}

// CurrentUser fetches the signed-in account.
func (s *Service) CurrentUser(ctx context.Context) (*User, error) {
	resp, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: endpoint.UserPath.Path()})
	if err != nil {
		return nil, err
	}
	user, err := parseUser(resp.Body)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Logout drops the stored tokens.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.creds.Clear(ctx); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	s.logger.Info("Logged out")
	return nil
}

// Claims reads the claims of the stored access token.
func (s *Service) Claims(ctx context.Context) (Claims, error) {
	pair, err := s.creds.Get(ctx)
	if err != nil {
		return Claims{}, fmt.Errorf("reading credentials: %w", err)
	}
	if pair.Access == "" {
		return Claims{}, ErrNotLoggedIn
	}
	return ParseClaims(pair.Access)
}

// Expired reports whether there is no usable access token. Opaque tokens are
// assumed valid until the server says otherwise.
func (s *Service) Expired(ctx context.Context) (bool, error) {
	claims, err := s.Claims(ctx)
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		return true, nil
	case err != nil:
		pair, getErr := s.creds.Get(ctx)
		if getErr != nil {
			return false, getErr
		}
		return pair.Access == "", nil
	}
	return claims.Expired(s.now()), nil
}

// EnsureFresh refreshes the access token when it expires within leeway and a
// refresh token is held.
func (s *Service) EnsureFresh(ctx context.Context, leeway time.Duration) error {
	claims, err := s.Claims(ctx)
	if err != nil {
		if errors.Is(err, ErrNotLoggedIn) {
			return err
		}
		return nil
	}
	if !claims.ExpiresWithin(s.now(), leeway) {
		return nil
	}
	return s.Refresh(ctx)
}

// authBody is the normalised content of a login, register or refresh reply.
type authBody struct {
	pair credential.Pair
	user *User
}

// parseAuthBody accepts {access, refresh, user}, {token: {access_token,
// refresh_token}, user} and either of those inside {success, data}.
func parseAuthBody(data []byte) (authBody, error) {
	var out authBody
	if len(data) == 0 {
		return out, nil
	}

	fields, err := unwrapData(data)
	if err != nil {
		return out, err
	}

	out.pair.Access = firstString(fields, "access", "access_token", "token")
	out.pair.Refresh = firstString(fields, "refresh", "refresh_token")

	if raw, ok := fields["token"]; ok && out.pair.Access == "" {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			out.pair.Access = firstString(nested, "access_token", "access")
			if out.pair.Refresh == "" {
				out.pair.Refresh = firstString(nested, "refresh_token", "refresh")
			}
		}
	}

	if raw, ok := fields["user"]; ok {
		var u User
		if err := json.Unmarshal(raw, &u); err != nil {
			return out, fmt.Errorf("decoding user: %w", err)
		}
		out.user = &u
	}
	return out, nil
}

// parseUser decodes a user body, bare or wrapped in {success, data} or {user}.
func parseUser(data []byte) (*User, error) {
	fields, err := unwrapData(data)
	if err != nil {
		return nil, err
	}
	if raw, ok := fields["user"]; ok {
		fields = nil
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decoding user: %w", err)
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	return &u, nil
}

// unwrapData decodes an object and unwraps a {success, data} envelope.
func unwrapData(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding auth response: %w", err)
	}
	if raw, ok := fields["data"]; ok {
		if _, hasSuccess := fields["success"]; hasSuccess {
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(raw, &inner); err != nil {
				return nil, fmt.Errorf("decoding auth response data: %w", err)
			}
			return inner, nil
		}
	}
	return fields, nil
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

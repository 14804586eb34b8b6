package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/config"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// defaultLifetime is assumed when the token endpoint omits expires_in.
const defaultLifetime = time.Hour

// refreshTimeout bounds a shared exchange, which outlives any one caller.
const refreshTimeout = 30 * time.Second

// Provider implements the credential lookup used by the task worker.
type Provider struct {
	creds  store.CredentialStore
	oauth  *oauth2.Config
	logger *slog.Logger
	group  singleflight.Group

	// now is replaceable in tests.
	now func() time.Time
}

// NewProvider creates a Provider that refreshes against cfg.TokenURL.
func NewProvider(creds store.CredentialStore, cfg config.GoogleConfig, logger *slog.Logger) (*Provider, error) {
	if creds == nil {
		return nil, errors.New("credential store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.TokenURL == "" {
		return nil, errors.New("token URL cannot be empty")
	}
	return &Provider{
		creds: creds,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		logger: logger.With("component", "credential"),
		now:    time.Now,
	}, nil
}

// GetValidToken returns the stored access token of principalID while it is
// unexpired. Otherwise it refreshes once, persists the new token and
// returns it. Refresh failures are AuthErrors.
func (p *Provider) GetValidToken(ctx context.Context, principalID uuid.UUID) (string, error) {
	cred, err := p.load(ctx, principalID)
	if err != nil {
		return "", err
	}
	if cred.Valid(p.now()) {
		return cred.AccessToken, nil
	}
	return p.refresh(ctx, cred)
}

// ForceRefresh refreshes regardless of the stored expiry. The worker calls
// it once after the external service rejected a token it believed valid.
func (p *Provider) ForceRefresh(ctx context.Context, principalID uuid.UUID) (string, error) {
	cred, err := p.load(ctx, principalID)
	if err != nil {
		return "", err
	}
	return p.refresh(ctx, cred)
}

func (p *Provider) load(ctx context.Context, principalID uuid.UUID) (*domain.Credential, error) {
	cred, err := p.creds.Get(ctx, principalID)
	if errors.Is(err, store.ErrCredentialNotFound) {
		return nil, domain.NewAuthError(fmt.Sprintf("no credential for principal %s", principalID), err)
	}
	if err != nil {
		return nil, domain.NewTransientError("load credential", err)
	}
	return cred, nil
}

// refresh exchanges the refresh token. Concurrent refreshes for the same
// principal share one exchange. The exchange runs detached from the first
// caller's cancellation so joined callers are not failed by it; each caller
// still stops waiting when its own ctx ends.
func (p *Provider) refresh(ctx context.Context, cred *domain.Credential) (string, error) {
	if cred.RefreshToken == "" {
		return "", domain.NewAuthError("credential has no refresh token", nil)
	}

	ch := p.group.DoChan(cred.PrincipalID.String(), func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		tok, err := p.oauth.TokenSource(rctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
		if err != nil {
			return nil, classifyRefreshError(err)
		}

		expiresAt := tok.Expiry
		if expiresAt.IsZero() {
			expiresAt = p.now().Add(defaultLifetime)
		}
		if err := p.creds.UpdateAccessToken(rctx, cred.PrincipalID, tok.AccessToken, expiresAt.UTC()); err != nil {
			// The token is good; the next caller will simply refresh again.
			p.logger.WarnContext(rctx, "failed to persist refreshed token",
				"principal_id", cred.PrincipalID,
				"error", err)
		}
		p.logger.InfoContext(rctx, "access token refreshed",
			"principal_id", cred.PrincipalID,
			"expires_at", expiresAt)
		return tok.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", domain.NewTransientError("token refresh interrupted", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			p.logger.DebugContext(ctx, "shared in-flight token refresh", "principal_id", cred.PrincipalID)
		}
		return res.Val.(string), nil
	}
}

// classifyRefreshError treats a rejection by the token endpoint as an auth
// failure, and an unreachable, throttling or failing endpoint as transient.
func classifyRefreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			switch code := re.Response.StatusCode; {
			case code == http.StatusTooManyRequests:
				return domain.NewTransientError("token endpoint rate limited", err)
			case code >= http.StatusInternalServerError:
				return domain.NewTransientError("token endpoint unavailable", err)
			}
		}
		return domain.NewAuthError("token refresh rejected", err)
	}
	return domain.NewTransientError("token refresh failed", err)
}

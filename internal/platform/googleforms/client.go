package googleforms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/phrazzld/formrelay/internal/config"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/forms"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	formsapi "google.golang.org/api/forms/v1"
	"google.golang.org/api/option"
)

// Client implements forms.Client for one access token.
type Client struct {
	svc     *formsapi.Service
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ forms.Client = (*Client)(nil)

// Factory builds Clients that share a rate limiter and endpoint.
type Factory struct {
	endpoint string
	limiter  *rate.Limiter
	logger   *slog.Logger
	// base is the transport under the OAuth layer; nil uses http.DefaultTransport.
	base http.RoundTripper
}

var _ forms.ClientFactory = (*Factory)(nil)

// NewFactory creates a Factory from the Google configuration section.
//
// Parameters:
//   - cfg: endpoint override and the process-wide request rate
//   - logger: structured logger; must not be nil
//
// Returns:
//   - A Factory ready to build per-token clients, or an error on bad input
func NewFactory(cfg config.GoogleConfig, logger *slog.Logger) (*Factory, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive, got %v", cfg.RequestsPerSecond)
	}
	burst := int(math.Max(1, math.Ceil(cfg.RequestsPerSecond)))
	return &Factory{
		endpoint: cfg.FormsEndpoint,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		logger:   logger.With("component", "googleforms"),
	}, nil
}

// ForToken returns a Client that authorizes requests with accessToken.
func (f *Factory) ForToken(ctx context.Context, accessToken string) (forms.Client, error) {
	if accessToken == "" {
		return nil, domain.NewAuthError("access token is empty", nil)
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   f.base,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}

	svc, err := formsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, domain.NewFatalError("create forms service", err)
	}
	return &Client{svc: svc, limiter: f.limiter, logger: f.logger}, nil
}

func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.NewTransientError(fmt.Sprintf("forms %s: rate limiter", op), err)
	}
	return nil
}

// Create makes a form with title and, if given, description. The API only
// accepts a title on creation, so the description is set by a follow-up
// batch update.
func (c *Client) Create(ctx context.Context, title, description string) (string, error) {
	if err := c.wait(ctx, "create"); err != nil {
		return "", err
	}
	created, err := c.svc.Forms.Create(&formsapi.Form{
		Info: &formsapi.Info{Title: title, DocumentTitle: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", classify("create", err)
	}
	c.logger.DebugContext(ctx, "form created", "external_id", created.FormId)

	if description != "" {
		err := c.ApplyOperations(ctx, created.FormId, []forms.Operation{forms.UpdateInfo(title, description)})
		if err != nil {
			return created.FormId, err
		}
	}
	return created.FormId, nil
}

// ApplyOperations sends ops as one batchUpdate call. An empty batch makes
// no request.
func (c *Client) ApplyOperations(ctx context.Context, externalID string, ops []forms.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	reqs, err := toRequests(ops)
	if err != nil {
		return domain.NewFatalError("build batch update", err)
	}
	if err := c.wait(ctx, "batchUpdate"); err != nil {
		return err
	}

	_, err = c.svc.Forms.BatchUpdate(externalID, &formsapi.BatchUpdateFormRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return classify("batchUpdate", err)
	}
	c.logger.DebugContext(ctx, "form updated", "external_id", externalID, "operations", len(ops))
	return nil
}

// Read fetches the current structure of a form.
func (c *Client) Read(ctx context.Context, externalID string) (*forms.Form, error) {
	if err := c.wait(ctx, "get"); err != nil {
		return nil, err
	}
	got, err := c.svc.Forms.Get(externalID).Context(ctx).Do()
	if err != nil {
		return nil, classify("get", err)
	}
	return fromAPIForm(got), nil
}

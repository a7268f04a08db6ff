package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Dosada05/league-orchestrator/metrics"
	"github.com/Dosada05/league-orchestrator/models"
)

const (
	defaultBaseURL   = "https://api.challonge.com/v1"
	maxResponseBytes = 4 << 20
	tracerName       = "github.com/Dosada05/league-orchestrator/provider"
)

type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	Username   string
	APIKey     string
	Timeout    time.Duration
	// RatePerSecond <= 0 disables client-side throttling.
	RatePerSecond        float64
	Burst                int
	MaxRetries           int
	RetryInitialInterval time.Duration
	Logger               *slog.Logger
	Metrics              *metrics.Metrics
	Tracer               trace.Tracer
}

// Client is the Challonge v1 implementation of Provider. Reads are coalesced and retried,
// writes are sent exactly once.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	username     string
	apiKey       string
	maxRetries   int
	retryInitial time.Duration
	limiter      *rate.Limiter
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	flight       singleflight.Group
}

var _ Provider = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	retryInitial := cfg.RetryInitialInterval
	if retryInitial <= 0 {
		retryInitial = 500 * time.Millisecond
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      baseURL,
		username:     cfg.Username,
		apiKey:       cfg.APIKey,
		maxRetries:   max(cfg.MaxRetries, 0),
		retryInitial: retryInitial,
		limiter:      rate.NewLimiter(limit, burst),
		logger:       logger,
		metrics:      cfg.Metrics,
		tracer:       tracer,
	}
}

func (c *Client) CreateTournament(ctx context.Context, p CreateParams) (*Tournament, error) {
	form := url.Values{}
	form.Set("tournament[name]", p.Name)
	form.Set("tournament[url]", p.URL)
	form.Set("tournament[tournament_type]", formatToWire(p.Format))
	if p.GameName != "" {
		form.Set("tournament[game_name]", p.GameName)
	}
	if p.Description != "" {
		form.Set("tournament[description]", p.Description)
	}

	var env tournamentEnvelope
	if err := c.write(ctx, "create_tournament", http.MethodPost, "/tournaments.json", form, &env); err != nil {
		return nil, err
	}
	return env.toTournament()
}

func (c *Client) ListTournaments(ctx context.Context, state ListState) ([]Tournament, error) {
	query := url.Values{}
	if state != "" {
		query.Set("state", string(state))
	}

	var envs []tournamentEnvelope
	if err := c.get(ctx, "list_tournaments", "/tournaments.json", query, &envs); err != nil {
		return nil, err
	}
	out := make([]Tournament, 0, len(envs))
	for i := range envs {
		t, err := envs[i].toTournament()
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (c *Client) ShowTournament(ctx context.Context, id int64) (*Tournament, error) {
	return c.showTournament(ctx, strconv.FormatInt(id, 10))
}

func (c *Client) ShowTournamentByURL(ctx context.Context, slug string) (*Tournament, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, fmt.Errorf("%w: empty tournament url", ErrRejected)
	}
	return c.showTournament(ctx, url.PathEscape(slug))
}

func (c *Client) showTournament(ctx context.Context, ref string) (*Tournament, error) {
	var env tournamentEnvelope
	if err := c.get(ctx, "show_tournament", "/tournaments/"+ref+".json", nil, &env); err != nil {
		return nil, err
	}
	return env.toTournament()
}

func (c *Client) DestroyTournament(ctx context.Context, id int64) error {
	return c.write(ctx, "destroy_tournament", http.MethodDelete, fmt.Sprintf("/tournaments/%d.json", id), nil, nil)
}

func (c *Client) StartTournament(ctx context.Context, id int64) (*Tournament, error) {
	return c.tournamentAction(ctx, "start_tournament", id, "start")
}

func (c *Client) FinalizeTournament(ctx context.Context, id int64) (*Tournament, error) {
	return c.tournamentAction(ctx, "finalize_tournament", id, "finalize")
}

func (c *Client) ResetTournament(ctx context.Context, id int64) (*Tournament, error) {
	return c.tournamentAction(ctx, "reset_tournament", id, "reset")
}

func (c *Client) tournamentAction(ctx context.Context, op string, id int64, action string) (*Tournament, error) {
	var env tournamentEnvelope
	path := fmt.Sprintf("/tournaments/%d/%s.json", id, action)
	if err := c.write(ctx, op, http.MethodPost, path, nil, &env); err != nil {
		return nil, err
	}
	return env.toTournament()
}

func (c *Client) RandomizeSeeds(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/tournaments/%d/participants/randomize.json", id)
	return c.write(ctx, "randomize_seeds", http.MethodPost, path, nil, nil)
}

func (c *Client) AddParticipant(ctx context.Context, tournamentID int64, name string) (*Participant, error) {
	form := url.Values{}
	form.Set("participant[name]", name)

	var env participantEnvelope
	path := fmt.Sprintf("/tournaments/%d/participants.json", tournamentID)
	if err := c.write(ctx, "add_participant", http.MethodPost, path, form, &env); err != nil {
		return nil, err
	}
	return env.toParticipant()
}

func (c *Client) RemoveParticipant(ctx context.Context, tournamentID, participantID int64) error {
	path := fmt.Sprintf("/tournaments/%d/participants/%d.json", tournamentID, participantID)
	return c.write(ctx, "remove_participant", http.MethodDelete, path, nil, nil)
}

func (c *Client) ListParticipants(ctx context.Context, tournamentID int64) ([]Participant, error) {
	var envs []participantEnvelope
	path := fmt.Sprintf("/tournaments/%d/participants.json", tournamentID)
	if err := c.get(ctx, "list_participants", path, nil, &envs); err != nil {
		return nil, err
	}
	out := make([]Participant, 0, len(envs))
	for i := range envs {
		p, err := envs[i].toParticipant()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (c *Client) ListMatches(ctx context.Context, tournamentID int64, filter MatchFilter) ([]models.Match, error) {
	query := url.Values{}
	if filter != "" {
		query.Set("state", string(filter))
	}

	var envs []matchEnvelope
	path := fmt.Sprintf("/tournaments/%d/matches.json", tournamentID)
	if err := c.get(ctx, "list_matches", path, query, &envs); err != nil {
		return nil, err
	}
	out := make([]models.Match, 0, len(envs))
	for i := range envs {
		m, err := envs[i].toMatch()
		if err != nil {
			return nil, err
		}
		if m.InstanceExternalID == 0 {
			m.InstanceExternalID = tournamentID
		}
		out = append(out, *m)
	}
	return out, nil
}

func (c *Client) UpdateMatch(ctx context.Context, tournamentID, matchID int64, update MatchUpdate) (*models.Match, error) {
	form := url.Values{}
	form.Set("match[scores_csv]", update.ScoresCSV)
	form.Set("match[winner_id]", strconv.FormatInt(update.WinnerID, 10))

	var env matchEnvelope
	path := fmt.Sprintf("/tournaments/%d/matches/%d.json", tournamentID, matchID)
	if err := c.write(ctx, "update_match", http.MethodPut, path, form, &env); err != nil {
		return nil, err
	}
	return env.toMatch()
}

// get performs an idempotent read: concurrent identical calls share one request and
// transient failures are retried with exponential backoff.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, target any) error {
	key := path
	if encoded := query.Encode(); encoded != "" {
		key += "?" + encoded
	}

	out, err, _ := c.flight.Do(key, func() (any, error) {
		return c.getWithRetry(ctx, op, path, query)
	})
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("%w: unexpected payload type %T", ErrDecode, out)
	}
	if err := jsoniter.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, op, err)
	}
	return nil
}

func (c *Client) getWithRetry(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	var raw []byte
	operation := func() error {
		body, err := c.do(ctx, op, http.MethodGet, path, query, nil)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		raw = body
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInitial
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "provider read failed, retrying",
			slog.String("op", op),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// write sends a mutating request once. Failures where the request may have reached the
// provider are reported as ErrOutcomeUnknown.
func (c *Client) write(ctx context.Context, op, method, path string, form url.Values, target any) error {
	raw, err := c.do(ctx, op, method, path, nil, form)
	if err != nil {
		return err
	}
	if target == nil || len(raw) == 0 {
		return nil
	}
	if err := jsoniter.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query, form url.Values) (raw []byte, err error) {
	started := time.Now()
	idempotent := method == http.MethodGet

	ctx, span := c.tracer.Start(ctx, "challonge."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("provider.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.metrics.ObserveProvider(op, started, err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if idempotent {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &APIError{Op: op, Method: method, Messages: []string{err.Error()}, Err: ErrUnavailable}
		}
		return nil, &APIError{Op: op, Method: method, Messages: []string{err.Error()}, Err: ErrOutcomeUnknown}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		class := ErrUnavailable
		if !idempotent && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			class = ErrOutcomeUnknown
		}
		return nil, &APIError{Op: op, Method: method, Status: resp.StatusCode, Messages: []string{readErr.Error()}, Err: class}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, c.classify(op, method, resp.StatusCode, raw, idempotent)
}

func (c *Client) classify(op, method string, status int, raw []byte, idempotent bool) error {
	apiErr := &APIError{Op: op, Method: method, Status: status}

	var body apiErrors
	if len(raw) > 0 && jsoniter.Unmarshal(raw, &body) == nil {
		apiErr.Messages = body.Errors
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		apiErr.Err = ErrUnauthorized
	case status == http.StatusNotFound:
		apiErr.Err = ErrNotFound
	case status == http.StatusTooManyRequests:
		// Throttled requests are never applied.
		apiErr.Err = ErrUnavailable
	case status >= 500:
		if idempotent {
			apiErr.Err = ErrUnavailable
		} else {
			apiErr.Err = ErrOutcomeUnknown
		}
	default:
		apiErr.Err = ErrRejected
	}
	return apiErr
}

// Package profile talks to the identity service to resolve doctor and
// patient display data. Every call is preceded by a liveness probe and both
// the probe and the call are bounded by their own timeouts.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

var (
	ErrDoctorNotFound      = apperr.New(apperr.ErrNotFound, "doctor not found")
	ErrPatientNotFound     = apperr.New(apperr.ErrNotFound, "patient not found")
	ErrIdentityUnavailable = apperr.New(apperr.ErrUnavailable, "identity service unavailable")
)

var tracer = otel.Tracer("github.com/hackgods/clinic-appointments/profile")

// Lookup resolves profiles by id.
type Lookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}

type Options struct {
	BaseURL      string
	ProbeTimeout time.Duration
	CallTimeout  time.Duration
	CacheTTL     time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	cache   redisclient.Cache
	opts    Options
	log     zerolog.Logger
}

var _ Lookup = (*Client)(nil)

// NewClient builds a client. cache may be nil, in which case every lookup
// goes to the identity service.
func NewClient(opts Options, httpClient *http.Client, cache redisclient.Cache, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		cache:   cache,
		opts:    opts,
		log:     log.With().Str("component", "profile").Logger(),
	}
}

func (c *Client) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	if err := c.lookup(ctx, "doctor", "/api/v1/internal/doctors/", id, ErrDoctorNotFound, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	if err := c.lookup(ctx, "patient", "/api/v1/internal/patients/", id, ErrPatientNotFound, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ping runs the liveness probe on its own.
func (c *Client) Ping(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/health/live", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: probe: %v", ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: probe status %d", ErrIdentityUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, kind, path string, id uuid.UUID, notFound error, dst any) error {
	ctx, span := tracer.Start(ctx, "profile.Get"+strings.ToUpper(kind[:1])+kind[1:])
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", id.String()))

	key := "profile:" + kind + ":" + id.String()
	if c.cache != nil {
		hit, err := c.cache.Get(ctx, key, dst)
		if err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("profile cache read failed")
		} else if hit {
			span.SetAttributes(attribute.Bool("profile.cache_hit", true))
			return nil
		}
	}

	if err := c.Ping(ctx); err != nil {
		span.SetStatus(codes.Error, "probe failed")
		return err
	}

	if err := c.fetch(ctx, path+id.String(), notFound, dst); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, dst, c.opts.CacheTTL); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("profile cache write failed")
		}
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, path string, notFound error, dst any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrIdentityUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
		}
		return fmt.Errorf("%w: decode profile: %v", ErrIdentityUnavailable, err)
	}
	return nil
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
)

// HTTPDirectory resolves organization membership against the identity
// service:
//
//	GET {baseURL}/api/v1/orgs/{org}/members/{id}
//
// Calls go through a circuit breaker; while it is open lookups fail fast with
// UNAVAILABLE, which the resolver treats as a denial.
type HTTPDirectory struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

// NewHTTPDirectory creates a directory client. A zero timeout means 5s.
func NewHTTPDirectory(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPDirectory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity-directory",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// unknown members are answers, not outages
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errors.ErrCodeNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return d
}

func (d *HTTPDirectory) Lookup(ctx context.Context, orgID string, actor domain.Actor) (domain.Membership, error) {
	out, err := d.breaker.Execute(func() (interface{}, error) {
		return d.fetch(ctx, orgID, actor.ID)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return domain.Membership{}, errors.Unavailable(err, "identity directory unavailable")
		}
		return domain.Membership{}, err
	}
	return out.(domain.Membership), nil
}

func (d *HTTPDirectory) fetch(ctx context.Context, orgID, actorID string) (domain.Membership, error) {
	endpoint := fmt.Sprintf("%s/api/v1/orgs/%s/members/%s", d.baseURL, url.PathEscape(orgID), url.PathEscape(actorID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Membership{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to build membership request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return domain.Membership{}, errors.Unavailable(err, "identity directory unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Membership{}, errors.NotFound("member", actorID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Membership{}, errors.Unavailable(
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			"identity directory returned an error")
	}

	var m domain.Membership
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return domain.Membership{}, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to decode membership")
	}
	return m, nil
}

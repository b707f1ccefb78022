// Package geo resolves visitor IPs to coarse locations through a chain of
// hosted lookup services. Resolution happens once per session; results are
// denormalized onto every event of that session.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Location is the resolved origin of one session.
type Location struct {
	IP          string `json:"ip"`
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Region      string `json:"region"`
}

// Unknown is the sentinel used when every provider fails. Session creation
// must never block on geolocation.
var Unknown = Location{CountryCode: "XX", CountryName: "Unknown"}

// providerResponse covers the field names of the supported lookup services
// (ipwho.is and ipapi.co shapes).
type providerResponse struct {
	IP          string `json:"ip"`
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Success     *bool  `json:"success"`
}

// Resolver tries each provider URL template in order and caches successful
// lookups per IP for the lifetime of the process.
type Resolver struct {
	providers []string
	client    *http.Client
	log       *logrus.Entry

	mu    sync.Mutex
	cache map[string]Location
}

func NewResolver(providers []string, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{
		providers: providers,
		client:    &http.Client{Timeout: 5 * time.Second},
		log:       logger.WithField("component", "geo-resolver"),
		cache:     make(map[string]Location),
	}
}

// Resolve returns the location for an IP, the Unknown sentinel when every
// provider fails. It never returns an error.
func (r *Resolver) Resolve(ctx context.Context, ip string) Location {
	if ip == "" {
		return Unknown
	}

	r.mu.Lock()
	if loc, ok := r.cache[ip]; ok {
		r.mu.Unlock()
		return loc
	}
	r.mu.Unlock()

	for _, tpl := range r.providers {
		loc, err := r.lookup(ctx, fmt.Sprintf(tpl, ip), ip)
		if err != nil {
			r.log.WithError(err).WithField("ip", ip).Debug("geo provider failed")
			continue
		}

		r.mu.Lock()
		r.cache[ip] = loc
		r.mu.Unlock()
		return loc
	}

	r.log.WithField("ip", ip).Warn("all geo providers failed, using sentinel")
	return Unknown
}

func (r *Resolver) lookup(ctx context.Context, url, ip string) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var pr providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Location{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if pr.Success != nil && !*pr.Success {
		return Location{}, fmt.Errorf("provider reported failure for %s", ip)
	}
	if pr.CountryCode == "" {
		return Location{}, fmt.Errorf("provider returned no country for %s", ip)
	}

	name := pr.CountryName
	if name == "" {
		name = pr.Country
	}

	return Location{
		IP:          ip,
		CountryCode: pr.CountryCode,
		CountryName: name,
		City:        pr.City,
		Region:      pr.Region,
	}, nil
}

// Package provider abstracts the external weather-station APIs behind one
// bulk-fetch operation. Adapters normalize timestamps to naive UTC and wind
// directions to [0,360) before anything downstream sees them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Measurement is a normalized wind reading. All speeds are km/h.
type Measurement struct {
	MeasurementAt    time.Time `json:"measurement_at"` // naive UTC
	WindAvgKmh       float64   `json:"wind_avg_kmh"`
	WindMaxKmh       float64   `json:"wind_max_kmh"`
	WindMinKmh       *float64  `json:"wind_min_kmh,omitempty"`
	WindDirectionDeg *float64  `json:"wind_direction_deg,omitempty"` // [0,360)
}

// StationInfo identifies a station resolved from a visual URL.
type StationInfo struct {
	ProviderID  string `json:"provider_id"`
	StationID   string `json:"station_id"`
	StationName string `json:"station_name"`
	VisualURL   string `json:"visual_url,omitempty"`
}

var (
	// ErrNoCredentials means the provider needs credentials that are not
	// configured. Fails the channel's tick, not the pipeline.
	ErrNoCredentials = errors.New("provider credentials not configured")
	// ErrUnknownProvider means a channel references a provider id that is
	// not registered.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider is the capability interface every weather backend implements.
type Provider interface {
	ID() string
	RequiresCredentials() bool
	SetCredentials(creds map[string]string)

	// ResolveStationURL extracts provider/station ids from a station's
	// public visual URL.
	ResolveStationURL(url string) (StationInfo, error)

	// FetchMeasurement returns the latest reading for one station, or nil
	// when the station has no recent data.
	FetchMeasurement(ctx context.Context, stationID string) (*Measurement, error)

	// FetchBulk returns the latest reading per station. A station that
	// errors yields a nil entry; only a whole-provider failure returns err.
	FetchBulk(ctx context.Context, stationIDs []string) (map[string]*Measurement, error)
}

// Registry holds the configured providers. Constructed once in main and
// passed down; credentials are re-read from the store each tick.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	log       zerolog.Logger
}

func NewRegistry(log zerolog.Logger, providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		log:       log.With().Str("component", "provider").Logger(),
	}
	for _, p := range providers {
		r.providers[p.ID()] = p
	}
	return r
}

// DefaultRegistry registers the production providers.
func DefaultRegistry(log zerolog.Logger) *Registry {
	return NewRegistry(log, NewFFVL(nil), NewOpenWindMap(nil))
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return p, nil
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}

// ApplyCredentials pushes stored credentials into the matching providers.
// Called at the top of every tick so admin-side edits take effect without a
// restart.
func (r *Registry) ApplyCredentials(creds map[string]map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range creds {
		if p, ok := r.providers[id]; ok && p.RequiresCredentials() {
			p.SetCredentials(c)
		}
	}
}

// ResolveStationURL tries every registered provider until one recognizes
// the URL.
func (r *Registry) ResolveStationURL(url string) (StationInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if info, err := p.ResolveStationURL(url); err == nil {
			return info, nil
		}
	}
	return StationInfo{}, fmt.Errorf("no provider recognizes url %q", url)
}

// normalizeDirection maps any real angle to [0,360).
func normalizeDirection(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// httpClient is the shared client for provider calls. Provider APIs are
// slow at times; 15s is the ceiling the tick budget tolerates.
func httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

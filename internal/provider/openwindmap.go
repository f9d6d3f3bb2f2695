package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// OpenWindMap reads the Pioupiou/Windbird beacon network through the public
// Pioupiou v1 API. No credentials needed; timestamps are ISO-8601 with a Z
// suffix.
type OpenWindMap struct {
	baseURL string
	client  *http.Client
}

func NewOpenWindMap(client *http.Client) *OpenWindMap {
	if client == nil {
		client = httpClient(15 * time.Second)
	}
	return &OpenWindMap{
		baseURL: "http://api.pioupiou.fr/v1",
		client:  client,
	}
}

func (o *OpenWindMap) ID() string                       { return "openwindmap" }
func (o *OpenWindMap) RequiresCredentials() bool        { return false }
func (o *OpenWindMap) SetCredentials(map[string]string) {}

var (
	owmSlugRe   = regexp.MustCompile(`^(?i)[a-z]+-(\d+)$`)
	owmPrefixRe = regexp.MustCompile(`^(?i)(PP|WB|MW)(\d+)$`)
)

// ResolveStationURL accepts openwindmap.org visual URLs, e.g.
// https://www.openwindmap.org/pioupiou-385 or .../PP603
func (o *OpenWindMap) ResolveStationURL(raw string) (StationInfo, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return StationInfo{}, fmt.Errorf("parse url: %w", err)
	}
	if !strings.Contains(u.Host, "openwindmap.org") {
		return StationInfo{}, fmt.Errorf("not an openwindmap.org url: %s", raw)
	}
	path := strings.Trim(u.Path, "/")

	var id string
	if m := owmSlugRe.FindStringSubmatch(path); m != nil {
		id = m[1]
	} else if m := owmPrefixRe.FindStringSubmatch(path); m != nil {
		id = m[2]
	} else {
		return StationInfo{}, fmt.Errorf("unrecognized openwindmap path: %q", u.Path)
	}

	return StationInfo{
		ProviderID:  o.ID(),
		StationID:   id,
		StationName: "Station " + id,
		VisualURL:   raw,
	}, nil
}

// owmStation is the per-station payload, shared by /live/<id> (wrapped in
// {"data": ...}) and /live/all (one element of the data array).
type owmStation struct {
	ID           json.Number `json:"id"`
	Measurements struct {
		Date         *string  `json:"date"`
		WindSpeedAvg *float64 `json:"wind_speed_avg"`
		WindSpeedMax *float64 `json:"wind_speed_max"`
		WindSpeedMin *float64 `json:"wind_speed_min"`
		WindHeading  *float64 `json:"wind_heading"`
	} `json:"measurements"`
}

func (o *OpenWindMap) FetchMeasurement(ctx context.Context, stationID string) (*Measurement, error) {
	u := fmt.Sprintf("%s/live/%s", o.baseURL, url.PathEscape(stationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openwindmap fetch station %s: %w", stationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openwindmap station %s: http %d", stationID, resp.StatusCode)
	}

	var wrapper struct {
		Data owmStation `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("openwindmap station %s: %w", stationID, err)
	}
	return parseOWMStation(wrapper.Data)
}

// FetchBulk hits /live/all once and filters to the requested stations.
func (o *OpenWindMap) FetchBulk(ctx context.Context, stationIDs []string) (map[string]*Measurement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/live/all", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openwindmap bulk fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openwindmap bulk fetch: http %d", resp.StatusCode)
	}

	var wrapper struct {
		Data []owmStation `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("openwindmap bulk fetch: %w", err)
	}

	all := make(map[string]*Measurement, len(wrapper.Data))
	for _, st := range wrapper.Data {
		m, err := parseOWMStation(st)
		if err != nil {
			continue
		}
		all[st.ID.String()] = m
	}

	out := make(map[string]*Measurement, len(stationIDs))
	for _, id := range stationIDs {
		out[id] = all[id]
	}
	return out, nil
}

func parseOWMStation(st owmStation) (*Measurement, error) {
	meas := st.Measurements
	if meas.WindSpeedAvg == nil || meas.WindSpeedMax == nil {
		return nil, fmt.Errorf("station %s: no wind data", st.ID.String())
	}
	m := &Measurement{
		WindAvgKmh: *meas.WindSpeedAvg,
		WindMaxKmh: *meas.WindSpeedMax,
		WindMinKmh: meas.WindSpeedMin,
	}
	if meas.WindHeading != nil {
		d := normalizeDirection(*meas.WindHeading)
		m.WindDirectionDeg = &d
	}
	if meas.Date == nil {
		return nil, fmt.Errorf("station %s: no measurement date", st.ID.String())
	}
	t, err := time.Parse(time.RFC3339, *meas.Date)
	if err != nil {
		return nil, fmt.Errorf("station %s: date %q: %w", st.ID.String(), *meas.Date, err)
	}
	u := t.UTC()
	m.MeasurementAt = time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, time.UTC)
	return m, nil
}

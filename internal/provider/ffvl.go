package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FFVL reads the Fédération Française de Vol Libre beacon network
// (data.ffvl.fr). Requires an API key; timestamps come back as
// Europe/Paris local time.
type FFVL struct {
	baseURL string
	client  *http.Client

	mu     sync.RWMutex
	apiKey string

	paris *time.Location
}

func NewFFVL(client *http.Client) *FFVL {
	if client == nil {
		client = httpClient(10 * time.Second)
	}
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		// tzdata missing on the host; fixed CET is wrong half the year but
		// better than crashing an unattended gateway.
		loc = time.FixedZone("CET", 3600)
	}
	return &FFVL{
		baseURL: "https://data.ffvl.fr/api",
		client:  client,
		paris:   loc,
	}
}

func (f *FFVL) ID() string                { return "ffvl" }
func (f *FFVL) RequiresCredentials() bool { return true }

func (f *FFVL) SetCredentials(creds map[string]string) {
	f.mu.Lock()
	f.apiKey = creds["api_key"]
	f.mu.Unlock()
}

func (f *FFVL) key() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.apiKey
}

// ResolveStationURL accepts balisemeteo.com visual URLs, e.g.
// https://www.balisemeteo.com/balise.php?idBalise=67
func (f *FFVL) ResolveStationURL(raw string) (StationInfo, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return StationInfo{}, fmt.Errorf("parse url: %w", err)
	}
	if !strings.Contains(u.Host, "balisemeteo.com") {
		return StationInfo{}, fmt.Errorf("not a balisemeteo.com url: %s", raw)
	}
	id := u.Query().Get("idBalise")
	if id == "" {
		return StationInfo{}, fmt.Errorf("missing idBalise parameter: %s", raw)
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return StationInfo{}, fmt.Errorf("idBalise must be an integer: %q", id)
	}
	return StationInfo{
		ProviderID:  f.ID(),
		StationID:   strconv.Itoa(n),
		StationName: "Balise FFVL " + strconv.Itoa(n),
		VisualURL:   raw,
	}, nil
}

// ffvlRecord is one history entry from the histo endpoint. All values are
// strings in the wire format.
type ffvlRecord struct {
	IDBalise      string `json:"idbalise"`
	Date          string `json:"date"` // "YYYY-MM-DD HH:MM:SS" Europe/Paris
	WindAvg       string `json:"vitesseVentMoy"`
	WindMax       string `json:"vitesseVentMax"`
	WindMin       string `json:"vitesseVentMin"`
	WindDirection string `json:"directVentMoy"`
}

func (f *FFVL) FetchMeasurement(ctx context.Context, stationID string) (*Measurement, error) {
	key := f.key()
	if key == "" {
		return nil, ErrNoCredentials
	}

	u := fmt.Sprintf("%s?base=balises&r=histo&idbalise=%s&mode=json&key=%s",
		f.baseURL, url.QueryEscape(stationID), url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ffvl fetch station %s: %w", stationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ffvl station %s: http %d", stationID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var records []ffvlRecord
	if err := json.Unmarshal(body, &records); err != nil {
		// The API answers 200 with an HTML error page on bad keys.
		return nil, fmt.Errorf("ffvl station %s: non-JSON response (invalid key?): %w", stationID, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	// First element is the latest reading.
	return f.parseRecord(records[0])
}

// FetchBulk has no bulk endpoint upstream; stations are fetched one by one
// and a failing station yields nil rather than failing the batch.
func (f *FFVL) FetchBulk(ctx context.Context, stationIDs []string) (map[string]*Measurement, error) {
	if f.key() == "" {
		return nil, ErrNoCredentials
	}
	out := make(map[string]*Measurement, len(stationIDs))
	for _, id := range stationIDs {
		m, err := f.FetchMeasurement(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out[id] = nil
			continue
		}
		out[id] = m
	}
	return out, nil
}

// ValidateAPIKey probes the list endpoint. FFVL answers HTTP 200 for bad
// keys too, returning HTML instead of JSON; a key is valid iff the body
// parses as a non-empty JSON array.
func (f *FFVL) ValidateAPIKey(ctx context.Context, apiKey string) (bool, error) {
	u := fmt.Sprintf("%s/?base=balises&r=list&mode=json&key=%s", f.baseURL, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return false, err
	}
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		return false, nil
	}
	return len(list) > 0, nil
}

func (f *FFVL) parseRecord(rec ffvlRecord) (*Measurement, error) {
	avg, err := strconv.ParseFloat(rec.WindAvg, 64)
	if err != nil {
		return nil, fmt.Errorf("ffvl wind avg %q: %w", rec.WindAvg, err)
	}
	max, err := strconv.ParseFloat(rec.WindMax, 64)
	if err != nil {
		return nil, fmt.Errorf("ffvl wind max %q: %w", rec.WindMax, err)
	}

	m := &Measurement{WindAvgKmh: avg, WindMaxKmh: max}

	if rec.WindMin != "" {
		if v, err := strconv.ParseFloat(rec.WindMin, 64); err == nil {
			m.WindMinKmh = &v
		}
	}
	if rec.WindDirection != "" {
		if v, err := strconv.ParseFloat(rec.WindDirection, 64); err == nil {
			d := normalizeDirection(v)
			m.WindDirectionDeg = &d
		}
	}

	// "date" is Paris local; convert to naive UTC before storage.
	local, err := time.ParseInLocation("2006-01-02 15:04:05", rec.Date, f.paris)
	if err != nil {
		return nil, fmt.Errorf("ffvl date %q: %w", rec.Date, err)
	}
	u := local.UTC()
	m.MeasurementAt = time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, time.UTC)
	return m, nil
}

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestFFVL(t *testing.T, handler http.HandlerFunc) (*FFVL, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewFFVL(srv.Client())
	f.baseURL = srv.URL
	f.SetCredentials(map[string]string{"api_key": "test-key"})
	return f, srv
}

func TestFFVLFetchMeasurement(t *testing.T) {
	f, _ := newTestFFVL(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key in query: %s", r.URL.RawQuery)
		}
		// Winter date: Paris is UTC+1.
		w.Write([]byte(`[
			{"idbalise":"158","date":"2025-12-30 19:31:56","vitesseVentMoy":"25","vitesseVentMax":"35","vitesseVentMin":"15","directVentMoy":"66"},
			{"idbalise":"158","date":"2025-12-30 19:21:56","vitesseVentMoy":"20","vitesseVentMax":"30","vitesseVentMin":"12","directVentMoy":"70"}
		]`))
	})

	m, err := f.FetchMeasurement(context.Background(), "158")
	if err != nil {
		t.Fatalf("FetchMeasurement: %v", err)
	}
	if m == nil {
		t.Fatal("want measurement, got nil")
	}

	// First element is the latest; 19:31:56 Paris winter = 18:31:56 UTC.
	want := time.Date(2025, 12, 30, 18, 31, 56, 0, time.UTC)
	if !m.MeasurementAt.Equal(want) {
		t.Errorf("measurement_at = %v, want %v (Paris→UTC)", m.MeasurementAt, want)
	}
	if m.MeasurementAt.Location() != time.UTC {
		t.Error("measurement_at must be naive UTC")
	}
	if m.WindAvgKmh != 25 || m.WindMaxKmh != 35 {
		t.Errorf("wind = %v/%v, want 25/35", m.WindAvgKmh, m.WindMaxKmh)
	}
	if m.WindMinKmh == nil || *m.WindMinKmh != 15 {
		t.Errorf("wind min = %v, want 15", m.WindMinKmh)
	}
	if m.WindDirectionDeg == nil || *m.WindDirectionDeg != 66 {
		t.Errorf("direction = %v, want 66", m.WindDirectionDeg)
	}
}

func TestFFVLNoCredentials(t *testing.T) {
	f := NewFFVL(nil)
	if _, err := f.FetchMeasurement(context.Background(), "158"); err != ErrNoCredentials {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
}

func TestFFVLHTMLOnBadKey(t *testing.T) {
	f, _ := newTestFFVL(t, func(w http.ResponseWriter, r *http.Request) {
		// The API answers 200 with HTML when the key is wrong.
		w.Write([]byte(`<html><body>error#2</body></html>`))
	})
	if _, err := f.FetchMeasurement(context.Background(), "158"); err == nil {
		t.Error("HTML response must surface as an error")
	}
}

func TestFFVLEmptyHistoryIsNil(t *testing.T) {
	f, _ := newTestFFVL(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	m, err := f.FetchMeasurement(context.Background(), "158")
	if err != nil || m != nil {
		t.Errorf("empty history: m=%v err=%v, want nil/nil", m, err)
	}
}

func TestFFVLBulkFailsSoft(t *testing.T) {
	f, _ := newTestFFVL(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("idbalise") == "bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"idbalise":"158","date":"2025-06-30 12:00:00","vitesseVentMoy":"10","vitesseVentMax":"14"}]`))
	})

	out, err := f.FetchBulk(context.Background(), []string{"158", "bad"})
	if err != nil {
		t.Fatalf("FetchBulk: %v", err)
	}
	if out["158"] == nil {
		t.Error("healthy station must yield a measurement")
	}
	if out["bad"] != nil {
		t.Error("failing station must yield nil, not abort the batch")
	}
}

func TestFFVLValidateAPIKey(t *testing.T) {
	f, _ := newTestFFVL(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "good" {
			w.Write([]byte(`[{"idBalise":"1"},{"idBalise":"2"}]`))
		} else {
			w.Write([]byte(`<html>error#1</html>`))
		}
	})

	ok, err := f.ValidateAPIKey(context.Background(), "good")
	if err != nil || !ok {
		t.Errorf("good key: ok=%v err=%v", ok, err)
	}
	ok, err = f.ValidateAPIKey(context.Background(), "bad")
	if err != nil || ok {
		t.Errorf("bad key: ok=%v err=%v, want false/nil", ok, err)
	}
}

func TestFFVLResolveStationURL(t *testing.T) {
	f := NewFFVL(nil)

	info, err := f.ResolveStationURL("https://www.balisemeteo.com/balise.php?idBalise=67")
	if err != nil {
		t.Fatalf("ResolveStationURL: %v", err)
	}
	if info.ProviderID != "ffvl" || info.StationID != "67" {
		t.Errorf("info = %+v", info)
	}

	for _, bad := range []string{
		"https://www.openwindmap.org/pioupiou-385",
		"https://www.balisemeteo.com/balise.php",
		"https://www.balisemeteo.com/balise.php?idBalise=abc",
	} {
		if _, err := f.ResolveStationURL(bad); err == nil {
			t.Errorf("ResolveStationURL(%q) should fail", bad)
		}
	}
}

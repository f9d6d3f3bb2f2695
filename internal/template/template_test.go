package template

import (
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func ptr(v float64) *float64 { return &v }

func TestRender(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 10, 0, 0, time.UTC)
	in := Input{
		StationName:      "Saint-Hilaire",
		WindAvgKmh:       23.4,
		WindMaxKmh:       37.6,
		WindMinKmh:       ptr(14.5),
		WindDirectionDeg: ptr(225),
		MeasurementAt:    time.Date(2025, 6, 30, 12, 5, 0, 0, time.UTC),
	}

	got := Render("Balise {station_name}, vent moyen {wind_avg_kmh}, maximum {wind_max_kmh}, "+
		"minimum {wind_min_kmh}, direction {wind_direction_name} {wind_direction_deg} degrés, "+
		"il y a {measurement_age_minutes} minutes", in, now)

	want := "Balise Saint-Hilaire, vent moyen 23, maximum 38, " +
		"minimum 15, direction Sud-Oueste 225 degrés, " +
		"il y a 5 minutes"
	if got != want {
		t.Errorf("Render:\n got %q\nwant %q", got, want)
	}
}

func TestRenderAgeOneMinute(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 1, 0, 0, time.UTC)
	in := Input{MeasurementAt: time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)}

	got := Render("il y a {measurement_age_minutes} minute", in, now)
	if got != "il y a une minute" {
		t.Errorf("age of one minute must be spoken, got %q", got)
	}
}

func TestRenderMissingOptionalFields(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	in := Input{
		StationName:   "Test",
		WindAvgKmh:    10,
		WindMaxKmh:    15,
		MeasurementAt: now,
	}

	got := Render("min {wind_min_kmh}, deg {wind_direction_deg}, "+
		"nom {wind_direction_name}, card {wind_direction_cardinal}", in, now)

	if !strings.Contains(got, "{wind_min_kmh}") {
		t.Errorf("missing wind min must leave placeholder as-is, got %q", got)
	}
	if !strings.Contains(got, "{wind_direction_deg}") {
		t.Errorf("missing direction must leave degree placeholder as-is, got %q", got)
	}
	if !strings.Contains(got, "nom variable") || !strings.Contains(got, "card variable") {
		t.Errorf("missing direction must speak as variable, got %q", got)
	}
}

func TestRenderUnknownPlaceholderKept(t *testing.T) {
	got := Render("hello {bogus}", Input{MeasurementAt: time.Now()}, time.Now())
	if got != "hello {bogus}" {
		t.Errorf("unknown placeholder must survive render, got %q", got)
	}
}

func TestDirectionName(t *testing.T) {
	tests := []struct {
		deg  float64
		want string
	}{
		{0, "Nord"},
		{11.2, "Nord"},
		{11.3, "Nord-Nord-Este"},
		{22.5, "Nord-Nord-Este"},
		{45, "Nord-Este"},
		{90, "Este"},
		{135, "Sud-Este"},
		{180, "Sud"},
		{225, "Sud-Oueste"},
		{247.5, "Oueste-Sud-Oueste"},
		{270, "Oueste"},
		{315, "Nord-Oueste"},
		{348, "Nord-Nord-Oueste"},
		{354, "Nord"},
		{359.9, "Nord"},
	}
	for _, tc := range tests {
		if got := DirectionName(tc.deg); got != tc.want {
			t.Errorf("DirectionName(%v) = %q, want %q", tc.deg, got, tc.want)
		}
	}
}

func TestDirectionCardinal(t *testing.T) {
	tests := []struct {
		deg  float64
		want string
	}{
		{0, "N"},
		{90, "E"},
		{180, "S"},
		{225, "SO"},
		{270, "O"},
		{292.5, "ONO"},
	}
	for _, tc := range tests {
		if got := DirectionCardinal(tc.deg); got != tc.want {
			t.Errorf("DirectionCardinal(%v) = %q, want %q", tc.deg, got, tc.want)
		}
	}
}

func TestDirectionNamePeriodic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deg := rapid.Float64Range(0, 359.999).Draw(t, "deg")
		turns := rapid.IntRange(1, 5).Draw(t, "turns")
		if DirectionName(deg) != DirectionName(deg+float64(turns)*360) {
			t.Fatalf("direction name must be periodic in 360 at %v", deg)
		}
	})
}

func TestValidate(t *testing.T) {
	if err := Validate("Balise {station_name}, {wind_avg_kmh} km/h, {wind_direction_name}"); err != nil {
		t.Errorf("valid template rejected: %v", err)
	}
	err := Validate("{station_name} {speed} {bogus}")
	if err == nil {
		t.Fatal("unknown placeholders must be reported")
	}
	for _, name := range []string{"speed", "bogus"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q must name %s", err, name)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{station_name} and {wind_avg_kmh} and {station_name}")
	if len(got) != 2 || got[0] != "station_name" || got[1] != "wind_avg_kmh" {
		t.Errorf("Placeholders = %v", got)
	}
}

package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func testChannel() *ChannelRow {
	return &ChannelRow{
		Name:                        "Col de Test",
		Enabled:                     true,
		ProviderID:                  "ffvl",
		StationID:                   "158",
		MeasurementPeriodSeconds:    3600,
		OffsetsSeconds:              []int{0, 1200},
		MinIntervalBetweenTxSeconds: 300,
		TemplateText:                "Balise {station_name}, {wind_avg_kmh} km/h",
		EngineID:                    "piper",
		VoiceID:                     "fr_FR-siwis-medium",
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s, err := db.Settings(ctx)
	require.NoError(t, err)
	if s.TxTimeoutSeconds != 30 {
		t.Errorf("default tx_timeout = %d, want 30", s.TxTimeoutSeconds)
	}
	if s.MasterEnabled {
		t.Error("master_enabled should default to false")
	}

	pin := 17
	s.MasterEnabled = true
	s.PollIntervalSeconds = 120
	s.PTTGpioPin = &pin
	s.PTTActiveLevel = 0
	require.NoError(t, db.UpdateSettings(ctx, s))

	got, err := db.Settings(ctx)
	require.NoError(t, err)
	if !got.MasterEnabled || got.PollIntervalSeconds != 120 || got.PTTGpioPin == nil || *got.PTTGpioPin != 17 {
		t.Errorf("settings did not round-trip: %+v", got)
	}
}

func TestSettingsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SettingsRow)
	}{
		{"poll_too_small", func(s *SettingsRow) { s.PollIntervalSeconds = 5 }},
		{"poll_too_large", func(s *SettingsRow) { s.PollIntervalSeconds = 700 }},
		{"pause_negative", func(s *SettingsRow) { s.InterAnnouncementPauseSeconds = -1 }},
		{"pause_too_large", func(s *SettingsRow) { s.InterAnnouncementPauseSeconds = 61 }},
		{"bad_active_level", func(s *SettingsRow) { s.PTTActiveLevel = 2 }},
		{"timeout_not_30", func(s *SettingsRow) { s.TxTimeoutSeconds = 60 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SettingsRow{PollIntervalSeconds: 60, PTTActiveLevel: 1, TxTimeoutSeconds: 30}
			tt.mutate(s)
			if err := s.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestChannelCRUDAndCascade(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	id, err := db.InsertChannel(ctx, testChannel(), now)
	require.NoError(t, err)

	ch, err := db.ChannelByID(ctx, id)
	require.NoError(t, err)
	if ch.Name != "Col de Test" || len(ch.OffsetsSeconds) != 2 {
		t.Errorf("channel did not round-trip: %+v", ch)
	}

	// Runtime row is created alongside.
	rt, err := db.Runtime(ctx, id)
	require.NoError(t, err)
	if rt.LastMeasurementAt != nil {
		t.Error("fresh runtime should have nil last_measurement_at")
	}

	// Ledger row referencing the channel.
	_, err = db.InsertTx(ctx, &TxRow{
		TxID: "cascade-test", ChannelID: id, Mode: ModeScheduled, Status: StatusPending,
		StationID: "158", MeasurementAt: now, PlannedAt: now, RenderedText: "x",
	}, now)
	require.NoError(t, err)

	// Delete cascades to runtime and ledger.
	require.NoError(t, db.DeleteChannel(ctx, id))
	if _, err := db.TxByID(ctx, "cascade-test"); err != ErrNotFound {
		t.Errorf("ledger row should cascade on channel delete, got err=%v", err)
	}
}

func TestChannelValidation(t *testing.T) {
	c := testChannel()
	c.OffsetsSeconds = []int{0, 1200, 0}
	if err := c.Validate(); err == nil {
		t.Error("duplicate offsets must be rejected")
	}

	c = testChannel()
	c.MeasurementPeriodSeconds = 0
	if err := c.Validate(); err == nil {
		t.Error("measurement period 0 must be rejected")
	}

	c = testChannel()
	c.OffsetsSeconds = []int{-60}
	if err := c.Validate(); err == nil {
		t.Error("negative offset must be rejected")
	}
}

func TestInsertTxIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	id, err := db.InsertChannel(ctx, testChannel(), now)
	require.NoError(t, err)

	row := &TxRow{
		TxID: "abc123", ChannelID: id, Mode: ModeScheduled, Status: StatusPending,
		StationID: "158", MeasurementAt: now, OffsetSeconds: 0, PlannedAt: now,
		RenderedText: "Balise Col de Test, 15 km/h",
	}
	inserted, err := db.InsertTx(ctx, row, now)
	require.NoError(t, err)
	if !inserted {
		t.Fatal("first insert should report inserted=true")
	}

	inserted, err = db.InsertTx(ctx, row, now)
	require.NoError(t, err)
	if inserted {
		t.Error("duplicate tx_id should report inserted=false without error")
	}
}

func TestDuePendingOrdering(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	id, err := db.InsertChannel(ctx, testChannel(), now)
	require.NoError(t, err)

	mk := func(txID string, planned time.Time) {
		_, err := db.InsertTx(ctx, &TxRow{
			TxID: txID, ChannelID: id, Mode: ModeScheduled, Status: StatusPending,
			StationID: "158", MeasurementAt: now.Add(-time.Hour), PlannedAt: planned,
			RenderedText: "x",
		}, now)
		require.NoError(t, err)
	}
	mk("later", now.Add(-1*time.Minute))
	mk("earliest", now.Add(-10*time.Minute))
	mk("future", now.Add(20*time.Minute))
	mk("tie-a", now.Add(-5*time.Minute))
	mk("tie-b", now.Add(-5*time.Minute))

	due, err := db.DuePending(ctx, now)
	require.NoError(t, err)

	var got []string
	for _, r := range due {
		got = append(got, r.TxID)
	}
	want := []string{"earliest", "tie-a", "tie-b", "later"}
	require.Equal(t, want, got)
}

func TestAbortPendingForChannel(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	id, err := db.InsertChannel(ctx, testChannel(), now)
	require.NoError(t, err)

	_, err = db.InsertTx(ctx, &TxRow{TxID: "p1", ChannelID: id, Mode: ModeScheduled,
		Status: StatusPending, StationID: "158", MeasurementAt: now, PlannedAt: now,
		RenderedText: "x"}, now)
	require.NoError(t, err)
	_, err = db.InsertTx(ctx, &TxRow{TxID: "s1", ChannelID: id, Mode: ModeScheduled,
		Status: StatusPending, StationID: "158", MeasurementAt: now, PlannedAt: now,
		RenderedText: "x"}, now)
	require.NoError(t, err)
	require.NoError(t, db.MarkSent(ctx, "s1", now))

	n, err := db.AbortPendingForChannel(ctx, id, "Cancelled by new measurement")
	require.NoError(t, err)
	if n != 1 {
		t.Errorf("aborted %d rows, want 1 (SENT row must survive)", n)
	}

	sent, err := db.TxByID(ctx, "s1")
	require.NoError(t, err)
	if sent.Status != StatusSent {
		t.Errorf("SENT row mutated to %s", sent.Status)
	}
}

func TestMarkFailedOverridesSent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	id, err := db.InsertChannel(ctx, testChannel(), now)
	require.NoError(t, err)
	_, err = db.InsertTx(ctx, &TxRow{TxID: "t1", ChannelID: id, Mode: ModeScheduled,
		Status: StatusPending, StationID: "158", MeasurementAt: now, PlannedAt: now,
		RenderedText: "x"}, now)
	require.NoError(t, err)

	// Optimistic SENT, then the radio fails: FAILED is authoritative.
	require.NoError(t, db.MarkSent(ctx, "t1", now))
	require.NoError(t, db.MarkFailed(ctx, "t1", "aplay exited 1"))

	r, err := db.TxByID(ctx, "t1")
	require.NoError(t, err)
	if r.Status != StatusFailed || r.ErrorMessage == nil {
		t.Errorf("row = %+v, want FAILED with message", r)
	}
}

func TestAbortStalePending(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	id, err := db.InsertChannel(ctx, testChannel(), now)
	require.NoError(t, err)

	_, err = db.InsertTx(ctx, &TxRow{TxID: "old", ChannelID: id, Mode: ModeScheduled,
		Status: StatusPending, StationID: "158", MeasurementAt: now.Add(-3 * time.Hour),
		PlannedAt: now.Add(-2 * time.Hour), RenderedText: "x"}, now)
	require.NoError(t, err)
	_, err = db.InsertTx(ctx, &TxRow{TxID: "recent", ChannelID: id, Mode: ModeScheduled,
		Status: StatusPending, StationID: "158", MeasurementAt: now.Add(-time.Minute),
		PlannedAt: now.Add(-30 * time.Minute), RenderedText: "x"}, now)
	require.NoError(t, err)

	n, err := db.AbortStalePending(ctx, now.Add(-time.Hour), "planned_at > 1h ago")
	require.NoError(t, err)
	if n != 1 {
		t.Errorf("aborted %d rows, want 1", n)
	}

	recent, err := db.TxByID(ctx, "recent")
	require.NoError(t, err)
	if recent.Status != StatusPending {
		t.Errorf("recent pending row aborted: %s", recent.Status)
	}
}

func TestEarliestPending(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	id, err := db.InsertChannel(ctx, testChannel(), now)
	require.NoError(t, err)

	got, err := db.EarliestPending(ctx, id)
	require.NoError(t, err)
	if got != nil {
		t.Errorf("empty ledger EarliestPending = %v, want nil", got)
	}

	_, err = db.InsertTx(ctx, &TxRow{TxID: "a", ChannelID: id, Mode: ModeScheduled,
		Status: StatusPending, StationID: "158", MeasurementAt: now,
		PlannedAt: now.Add(20 * time.Minute), RenderedText: "x"}, now)
	require.NoError(t, err)
	_, err = db.InsertTx(ctx, &TxRow{TxID: "b", ChannelID: id, Mode: ModeScheduled,
		Status: StatusPending, StationID: "158", MeasurementAt: now,
		PlannedAt: now.Add(5 * time.Minute), RenderedText: "x"}, now)
	require.NoError(t, err)

	got, err = db.EarliestPending(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	if !got.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("EarliestPending = %v, want %v", got, now.Add(5*time.Minute))
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.UpsertCredentials(ctx, "ffvl", map[string]string{"api_key": "k1"}, now))
	require.NoError(t, db.UpsertCredentials(ctx, "ffvl", map[string]string{"api_key": "k2"}, now))

	creds, err := db.Credentials(ctx)
	require.NoError(t, err)
	if creds["ffvl"]["api_key"] != "k2" {
		t.Errorf("credentials = %v, want upserted k2", creds)
	}
}

func TestAudioCacheEntryLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	row := &AudioCacheRow{
		CacheKey: "deadbeef", AudioPath: "/data/audio_cache/deadbeef.wav",
		SizeBytes: 4096, CreatedAt: now, LastUsedAt: now,
		Meta: map[string]any{"voice_id": "fr_FR-siwis-medium"},
	}
	require.NoError(t, db.InsertAudioCacheEntry(ctx, row))

	later := now.Add(time.Hour)
	require.NoError(t, db.TouchAudioCacheEntry(ctx, "deadbeef", later))

	got, err := db.AudioCacheEntry(ctx, "deadbeef")
	require.NoError(t, err)
	if !got.LastUsedAt.Equal(later) {
		t.Errorf("last_used_at = %v, want %v", got.LastUsedAt, later)
	}

	require.NoError(t, db.DeleteAudioCacheEntry(ctx, "deadbeef"))
	if _, err := db.AudioCacheEntry(ctx, "deadbeef"); err != ErrNotFound {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
}

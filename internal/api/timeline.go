package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/f4lix/vhf-balise/internal/clock"
	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/provider"
	"github.com/f4lix/vhf-balise/internal/runner"
)

// timelineEvent is one projected transmission on the forecast.
type timelineEvent struct {
	ChannelID       int64     `json:"channel_id"`
	ChannelName     string    `json:"channel_name"`
	TxTime          time.Time `json:"tx_time"`
	MeasurementTime time.Time `json:"measurement_time"`
	OffsetSeconds   int       `json:"offset_seconds"`
	RenderedText    string    `json:"rendered_text"`
	IsSimulated     bool      `json:"is_simulated"`
}

type forecastResponse struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Hours       int             `json:"hours"`
	Events      []timelineEvent `json:"events"`
}

// timelineForecast projects the transmission schedule over the next N hours
// by repeating each channel's measurement cycle. Future cycles reuse the
// current reading (or a simulated one), so the texts are estimates.
func (h *handlers) timelineForecast(w http.ResponseWriter, r *http.Request) {
	hours := QueryInt(r, "hours", 24, 1, 168)
	now := clock.Naive(time.Now().UTC())

	events, err := h.buildForecast(r.Context(), now, time.Duration(hours)*time.Hour)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "build forecast: %v", err)
		return
	}
	WriteJSON(w, http.StatusOK, forecastResponse{
		GeneratedAt: now,
		Hours:       hours,
		Events:      events,
	})
}

// timelineNext returns just the first upcoming transmissions.
func (h *handlers) timelineNext(w http.ResponseWriter, r *http.Request) {
	limit := QueryInt(r, "limit", 10, 1, 100)
	now := clock.Naive(time.Now().UTC())

	events, err := h.buildForecast(r.Context(), now, 168*time.Hour)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "build forecast: %v", err)
		return
	}
	if len(events) > limit {
		events = events[:limit]
	}
	WriteJSON(w, http.StatusOK, events)
}

func (h *handlers) buildForecast(ctx context.Context, now time.Time, window time.Duration) ([]timelineEvent, error) {
	channels, err := h.db.EnabledChannels(ctx)
	if err != nil {
		return nil, err
	}
	end := now.Add(window)

	events := make([]timelineEvent, 0)
	for _, ch := range channels {
		var m *provider.Measurement
		simulated := false
		if p, err := h.providers.Get(ch.ProviderID); err == nil {
			if fetched, err := p.FetchMeasurement(ctx, ch.StationID); err == nil && fetched != nil {
				m = fetched
			}
		}
		if m == nil {
			m = simulatedMeasurement(now)
			simulated = true
		}

		events = append(events, projectChannel(ch, m, simulated, now, end)...)
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].TxTime.Equal(events[j].TxTime) {
			return events[i].TxTime.Before(events[j].TxTime)
		}
		return events[i].ChannelID < events[j].ChannelID
	})
	return events, nil
}

// projectChannel repeats the channel's cycle from its latest measurement
// until the window closes. Cycle 0 carries the real reading; later cycles
// shift the same reading forward and are flagged simulated.
func projectChannel(ch *database.ChannelRow, m *provider.Measurement, simulated bool, now, end time.Time) []timelineEvent {
	period := time.Duration(ch.MeasurementPeriodSeconds) * time.Second
	if period <= 0 {
		return nil
	}

	var out []timelineEvent
	for cycle := 0; ; cycle++ {
		measTime := m.MeasurementAt.Add(time.Duration(cycle) * period)
		if measTime.After(end) {
			break
		}
		projected := *m
		projected.MeasurementAt = measTime

		for _, offset := range ch.OffsetsSeconds {
			txTime := measTime.Add(time.Duration(offset) * time.Second)
			if txTime.Before(now) || txTime.After(end) {
				continue
			}
			out = append(out, timelineEvent{
				ChannelID:       ch.ID,
				ChannelName:     ch.Name,
				TxTime:          txTime,
				MeasurementTime: measTime,
				OffsetSeconds:   offset,
				RenderedText:    runner.RenderAnnouncement(ch, &projected, txTime),
				IsSimulated:     simulated || cycle > 0,
			})
		}
	}
	return out
}

package runner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/metrics"
)

// poll is Phase A: one bulk fetch per provider, fanned out concurrently,
// then a per-channel diff. Only a strictly newer measurement triggers
// planning.
func (r *Runner) poll(ctx context.Context, now time.Time, channels []*database.ChannelRow) {
	byProvider := make(map[string][]*database.ChannelRow)
	for _, ch := range channels {
		byProvider[ch.ProviderID] = append(byProvider[ch.ProviderID], ch)
	}

	g, gctx := errgroup.WithContext(ctx)
	for providerID, group := range byProvider {
		g.Go(func() error {
			r.pollProvider(gctx, now, providerID, group)
			return nil
		})
	}
	g.Wait()
}

func (r *Runner) pollProvider(ctx context.Context, now time.Time, providerID string, channels []*database.ChannelRow) {
	log := r.log.With().Str("provider", providerID).Logger()

	p, err := r.providers.Get(providerID)
	if err != nil {
		metrics.ProviderFetchesTotal.WithLabelValues(providerID, "error").Inc()
		for _, ch := range channels {
			r.recordPollError(ctx, ch.ID, err)
		}
		return
	}

	stationIDs := make([]string, 0, len(channels))
	seen := make(map[string]bool)
	for _, ch := range channels {
		if !seen[ch.StationID] {
			seen[ch.StationID] = true
			stationIDs = append(stationIDs, ch.StationID)
		}
	}

	fetchStart := time.Now()
	results, err := p.FetchBulk(ctx, stationIDs)
	metrics.ProviderFetchDuration.WithLabelValues(providerID).Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		metrics.ProviderFetchesTotal.WithLabelValues(providerID, "error").Inc()
		log.Warn().Err(err).Msg("bulk fetch failed")
		for _, ch := range channels {
			r.recordPollError(ctx, ch.ID, err)
		}
		return
	}
	metrics.ProviderFetchesTotal.WithLabelValues(providerID, "ok").Inc()

	for _, ch := range channels {
		m := results[ch.StationID]
		if m == nil {
			log.Debug().Str("station", ch.StationID).Msg("no measurement for station")
			if err := r.db.SetLastError(ctx, ch.ID, "No measurement available"); err != nil {
				log.Error().Err(err).Int64("channel", ch.ID).Msg("cannot record poll error")
			}
			continue
		}
		r.setLatest(ch.ID, m)

		rt, err := r.db.Runtime(ctx, ch.ID)
		if err != nil {
			log.Error().Err(err).Int64("channel", ch.ID).Msg("cannot load runtime")
			continue
		}
		if rt.LastMeasurementAt != nil && !m.MeasurementAt.After(*rt.LastMeasurementAt) {
			continue
		}

		log.Info().
			Int64("channel", ch.ID).
			Time("measurement_at", m.MeasurementAt).
			Float64("wind_avg", m.WindAvgKmh).
			Msg("new measurement adopted")

		if err := r.db.SetLastMeasurement(ctx, ch.ID, m.MeasurementAt); err != nil {
			log.Error().Err(err).Int64("channel", ch.ID).Msg("cannot record measurement")
			continue
		}
		if err := r.plan(ctx, now, ch, m); err != nil {
			log.Error().Err(err).Int64("channel", ch.ID).Msg("planning failed")
			r.recordPollError(ctx, ch.ID, err)
		}
	}
}

func (r *Runner) recordPollError(ctx context.Context, channelID int64, cause error) {
	if err := r.db.SetLastError(ctx, channelID, cause.Error()); err != nil {
		r.log.Error().Err(err).Int64("channel", channelID).Msg("cannot record poll error")
	}
}

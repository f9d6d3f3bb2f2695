package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/hashing"
	"github.com/f4lix/vhf-balise/internal/provider"
	"github.com/f4lix/vhf-balise/internal/template"
)

// cancelReason is written on rows displaced by a fresher reading.
const cancelReason = "Cancelled by new measurement"

// plan is Phase B of the scheduler, policy cancel-on-new: drop every
// pending announcement of the channel and lay out one row per offset from
// the fresh measurement. The spoken text is rendered here, at planning
// time, so preview and live output stay byte-identical whatever the
// configuration does afterwards.
func (r *Runner) plan(ctx context.Context, now time.Time, ch *database.ChannelRow, m *provider.Measurement) error {
	cancelled, err := r.db.AbortPendingForChannel(ctx, ch.ID, cancelReason)
	if err != nil {
		return fmt.Errorf("cancel pending: %w", err)
	}
	if cancelled > 0 {
		r.log.Debug().Int64("channel", ch.ID).Int64("cancelled", cancelled).Msg("pending plans displaced")
	}

	text := RenderAnnouncement(ch, m, now)

	planned := 0
	for _, offset := range ch.OffsetsSeconds {
		plannedAt := m.MeasurementAt.Add(time.Duration(offset) * time.Second)
		txID := hashing.TxID(ch.ID, ch.ProviderID, ch.StationID, m.MeasurementAt,
			text, ch.EngineID, ch.VoiceID, ch.VoiceParams, offset)

		inserted, err := r.db.InsertTx(ctx, &database.TxRow{
			TxID:          txID,
			ChannelID:     ch.ID,
			Mode:          database.ModeScheduled,
			Status:        database.StatusPending,
			StationID:     ch.StationID,
			MeasurementAt: m.MeasurementAt,
			OffsetSeconds: offset,
			PlannedAt:     plannedAt,
			RenderedText:  text,
		}, now)
		if err != nil {
			return fmt.Errorf("insert tx offset %d: %w", offset, err)
		}
		if inserted {
			planned++
		}
	}
	r.log.Info().Int64("channel", ch.ID).Int("planned", planned).Msg("announcements planned")

	next, err := r.db.EarliestPending(ctx, ch.ID)
	if err != nil {
		return err
	}
	return r.db.SetNextTx(ctx, ch.ID, next)
}

// RenderAnnouncement builds the spoken text for a channel and measurement.
// The admin preview route calls this too, with identical inputs, which is
// what makes preview trustworthy.
func RenderAnnouncement(ch *database.ChannelRow, m *provider.Measurement, now time.Time) string {
	return template.Render(ch.TemplateText, template.Input{
		StationName:      ch.Name,
		WindAvgKmh:       m.WindAvgKmh,
		WindMaxKmh:       m.WindMaxKmh,
		WindMinKmh:       m.WindMinKmh,
		WindDirectionDeg: m.WindDirectionDeg,
		MeasurementAt:    m.MeasurementAt,
	}, now)
}

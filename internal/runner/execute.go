package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/f4lix/vhf-balise/internal/database"
	"github.com/f4lix/vhf-balise/internal/metrics"
)

// executeDue drains the PENDING rows whose planned time has arrived,
// strictly sequentially, earliest first. Every guard in here fails closed:
// when in doubt, nothing goes on air.
func (r *Runner) executeDue(ctx context.Context, settings *database.SettingsRow) error {
	now := r.clock.Now()
	due, err := r.db.DuePending(ctx, now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	affected := make(map[int64]bool)
	pause := time.Duration(settings.InterAnnouncementPauseSeconds) * time.Second

	for i, row := range due {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && pause > 0 {
			if err := r.clock.Sleep(ctx, pause); err != nil {
				break
			}
		}
		affected[row.ChannelID] = true
		r.executeOne(ctx, row, settings)
	}

	for channelID := range affected {
		next, err := r.db.EarliestPending(ctx, channelID)
		if err != nil {
			r.log.Error().Err(err).Int64("channel", channelID).Msg("cannot recompute next tx")
			continue
		}
		if err := r.db.SetNextTx(ctx, channelID, next); err != nil {
			r.log.Error().Err(err).Int64("channel", channelID).Msg("cannot store next tx")
		}
	}
	return nil
}

func (r *Runner) executeOne(ctx context.Context, row *database.TxRow, settings *database.SettingsRow) {
	log := r.log.With().Str("tx_id", row.TxID).Int64("channel", row.ChannelID).Logger()
	now := r.clock.Now()

	ch, err := r.db.ChannelByID(ctx, row.ChannelID)
	if errors.Is(err, database.ErrNotFound) {
		r.fail(ctx, row, "Channel not found")
		return
	}
	if err != nil {
		r.fail(ctx, row, err.Error())
		return
	}

	rt, err := r.db.Runtime(ctx, ch.ID)
	if err != nil {
		r.fail(ctx, row, err.Error())
		return
	}

	// Anti-spam guard. Manual test transmissions are exempt: the operator
	// asked for this one explicitly.
	minInterval := time.Duration(ch.MinIntervalBetweenTxSeconds) * time.Second
	if row.Mode != database.ModeManualTest && rt.LastTxAt != nil && now.Sub(*rt.LastTxAt) < minInterval {
		reason := fmt.Sprintf("Skipped: last transmission %s ago, minimum interval %s",
			now.Sub(*rt.LastTxAt).Truncate(time.Second), minInterval)
		r.abort(ctx, row, reason)
		if err := r.db.SetNextTx(ctx, ch.ID, nil); err != nil {
			log.Error().Err(err).Msg("cannot clear next tx")
		}
		log.Info().Str("reason", reason).Msg("transmission skipped")
		return
	}

	// A scheduled row only airs while its measurement is still the one we
	// know; if polling lost track of the station, stand down.
	if row.Mode != database.ModeManualTest && r.latestFor(ch.ID) == nil {
		r.fail(ctx, row, "No measurement available")
		return
	}

	period := time.Duration(ch.MeasurementPeriodSeconds) * time.Second
	if now.Sub(row.MeasurementAt) > period {
		r.abort(ctx, row, fmt.Sprintf("Measurement expired: %s old, period %s",
			now.Sub(row.MeasurementAt).Truncate(time.Second), period))
		log.Info().Msg("stale measurement, transmission aborted")
		return
	}

	audioPath, err := r.resolveAudio(ctx, row, ch)
	if err != nil {
		r.fail(ctx, row, fmt.Sprintf("Synthesis failed: %v", err))
		r.recordPollError(ctx, ch.ID, err)
		return
	}

	// Expiry re-check right before keying: synthesis can be slow enough to
	// invalidate the announcement.
	now = r.clock.Now()
	if now.Sub(row.MeasurementAt) > period {
		r.abort(ctx, row, "Measurement expired during synthesis")
		log.Info().Msg("measurement expired during synthesis")
		return
	}

	// Pre-commit of intent: the ledger says SENT before the radio keys up.
	// A failure below overrides with FAILED.
	if err := r.db.MarkSent(ctx, row.TxID, now); err != nil {
		r.fail(ctx, row, err.Error())
		return
	}
	if err := r.db.SetLastTx(ctx, ch.ID, now); err != nil {
		log.Error().Err(err).Msg("cannot record last tx")
	}

	lead := time.Duration(settings.PTTLeadMs) * time.Millisecond
	tail := time.Duration(settings.PTTTailMs) * time.Millisecond
	timeout := time.Duration(settings.TxTimeoutSeconds) * time.Second

	if err := r.seq.Transmit(ctx, audioPath, lead, tail, timeout); err != nil {
		metrics.TransmissionsTotal.WithLabelValues("failed").Inc()
		msg := fmt.Sprintf("Transmission failed: %v", err)
		if dbErr := r.db.MarkFailed(ctx, row.TxID, msg); dbErr != nil {
			log.Error().Err(dbErr).Msg("cannot override SENT with FAILED")
		}
		r.recordPollError(ctx, ch.ID, err)
		log.Error().Err(err).Msg("transmission failed")
		return
	}

	metrics.TransmissionsTotal.WithLabelValues("sent").Inc()
	log.Info().Str("audio", audioPath).Msg("announcement transmitted")
}

// resolveAudio reuses the row's audio artifact when it still exists,
// otherwise synthesizes from the frozen rendered text.
func (r *Runner) resolveAudio(ctx context.Context, row *database.TxRow, ch *database.ChannelRow) (string, error) {
	if row.AudioPath != nil {
		if _, err := os.Stat(*row.AudioPath); err == nil {
			return *row.AudioPath, nil
		}
	}
	path, err := r.cache.GetOrSynthesize(ctx, row.RenderedText, ch.VoiceID, ch.VoiceParams)
	if err != nil {
		return "", err
	}
	if err := r.db.SetTxAudioPath(ctx, row.TxID, path); err != nil {
		r.log.Error().Err(err).Str("tx_id", row.TxID).Msg("cannot persist audio path")
	}
	return path, nil
}

func (r *Runner) fail(ctx context.Context, row *database.TxRow, msg string) {
	metrics.TransmissionsTotal.WithLabelValues("failed").Inc()
	if err := r.db.MarkFailed(ctx, row.TxID, msg); err != nil {
		r.log.Error().Err(err).Str("tx_id", row.TxID).Msg("cannot mark failed")
	}
}

func (r *Runner) abort(ctx context.Context, row *database.TxRow, msg string) {
	metrics.TransmissionsTotal.WithLabelValues("aborted").Inc()
	if err := r.db.MarkAborted(ctx, row.TxID, msg); err != nil {
		r.log.Error().Err(err).Str("tx_id", row.TxID).Msg("cannot mark aborted")
	}
}

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonathan/job-alert/internal/notify"
	"github.com/jonathan/job-alert/internal/types"
)

// NoNewHeartbeatMetaKey stores the timestamp of the last silence heartbeat.
const NoNewHeartbeatMetaKey = "last_no_new_heartbeat_utc"

// HeartbeatInterval is the minimum gap between silence heartbeats.
const HeartbeatInterval = 7 * 24 * time.Hour

// HeartbeatStore is the state the heartbeat path reads and stamps.
type HeartbeatStore interface {
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	FailureStreak(ctx context.Context, source string) (int, error)
}

// RunHeartbeat sends a low-frequency status message so a prolonged stretch
// without new postings is still visible somewhere. This path is separate from
// Run on purpose: the run pipeline itself never notifies without new content.
// Returns whether a heartbeat was sent.
func RunHeartbeat(ctx context.Context, store HeartbeatStore, notifier Notifier, sources []string, tz string, threshold int, log *slog.Logger) (bool, error) {
	now := time.Now().UTC()

	previous, err := store.GetMeta(ctx, NoNewHeartbeatMetaKey)
	if err != nil {
		return false, err
	}
	if previous != "" {
		if prevAt, err := time.Parse(time.RFC3339, previous); err == nil && now.Sub(prevAt) < HeartbeatInterval {
			log.Debug("heartbeat not due", "last_sent", previous)
			return false, nil
		}
	}

	summary := notify.Summary{
		RunAt:          now,
		TZ:             tz,
		AlertThreshold: threshold,
		Heartbeat:      true,
	}
	for _, source := range sources {
		streak, err := store.FailureStreak(ctx, source)
		if err != nil {
			return false, err
		}
		if streak == 0 {
			summary.SuccessSites++
			continue
		}
		summary.FailedSites++
		siteErr := types.SiteError{Source: source, Message: "consecutive scrape failures", Streak: streak}
		if streak >= threshold {
			summary.Alerts = append(summary.Alerts, siteErr)
		} else {
			summary.Transient = append(summary.Transient, siteErr)
		}
	}

	if err := notifier.Notify(ctx, summary); err != nil {
		return false, err
	}
	if err := store.SetMeta(ctx, NoNewHeartbeatMetaKey, now.Format(time.RFC3339)); err != nil {
		return true, err
	}
	log.Info("heartbeat sent", "failed_sites", summary.FailedSites)
	return true, nil
}

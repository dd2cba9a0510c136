package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxisbill/praxisbill/internal/platform/clearing"
)

// EngineConfig tunes the reconciliation loop.
type EngineConfig struct {
	// Interval is the pause between cycles.
	Interval time.Duration
	// StatusDwell is how long a transmitted submission may sit without an
	// upstream state change before the dwell heuristic kicks in.
	StatusDwell time.Duration
	// DwellLawTypes lists the law types whose insurers never answer
	// electronically. Submissions under these laws are treated as
	// delivered once StatusDwell has passed.
	DwellLawTypes []string
	// BatchSize caps how many open submissions one cycle polls.
	BatchSize int
}

// CycleStats summarizes one reconciliation cycle for the log line.
type CycleStats struct {
	StatusChecked  int
	StatusAdvanced int
	DwellDelivered int
	Downloads      int
	Responses      int
	Notifications  int
	Duplicates     int
	Unmatched      int
	Rejections     int
	Errors         int
}

// Engine periodically polls the clearing proxy and reconciles open
// submissions: it advances statuses, drains response documents and
// drains notifications. Work is serial; a failing item is logged and
// retried next cycle, it never aborts the cycle.
type Engine struct {
	svc    *Service
	cfg    EngineConfig
	logger zerolog.Logger
}

func NewEngine(svc *Service, cfg EngineConfig, logger zerolog.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.StatusDwell <= 0 {
		cfg.StatusDwell = 240 * time.Hour
	}
	if cfg.DwellLawTypes == nil {
		cfg.DwellLawTypes = []string{"VVG"}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Engine{svc: svc, cfg: cfg, logger: logger}
}

// Start runs the engine until ctx is canceled. One cycle runs
// immediately, then one per interval.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info().
		Dur("interval", e.cfg.Interval).
		Dur("status_dwell", e.cfg.StatusDwell).
		Strs("dwell_law_types", e.cfg.DwellLawTypes).
		Msg("reconcile engine started")

	e.logCycle(e.RunCycle(ctx))

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("reconcile engine stopped")
			return
		case <-ticker.C:
			e.logCycle(e.RunCycle(ctx))
		}
	}
}

func (e *Engine) logCycle(stats CycleStats) {
	e.logger.Info().
		Int("status_checked", stats.StatusChecked).
		Int("status_advanced", stats.StatusAdvanced).
		Int("dwell_delivered", stats.DwellDelivered).
		Int("downloads", stats.Downloads).
		Int("responses", stats.Responses).
		Int("notifications", stats.Notifications).
		Int("duplicates", stats.Duplicates).
		Int("unmatched", stats.Unmatched).
		Int("rejections", stats.Rejections).
		Int("errors", stats.Errors).
		Msg("reconcile cycle complete")
}

// RunCycle executes the three reconciliation phases once.
func (e *Engine) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats
	e.advanceStatuses(ctx, &stats)
	e.drainDownloads(ctx, &stats)
	e.drainNotifications(ctx, &stats)

	e.svc.metrics.SetGauge("reconcile.cycle.status_advanced", int64(stats.StatusAdvanced))
	e.svc.metrics.SetGauge("reconcile.cycle.unmatched", int64(stats.Unmatched))
	e.svc.metrics.SetGauge("reconcile.cycle.errors", int64(stats.Errors))
	return stats
}

// advanceStatuses polls the upstream state of every open submission that
// has a message id.
func (e *Engine) advanceStatuses(ctx context.Context, stats *CycleStats) {
	subs, err := e.svc.submissions.ListOpenWithMessageID(ctx, e.cfg.BatchSize)
	if err != nil {
		stats.Errors++
		e.logger.Error().Err(err).Msg("failed to list open submissions")
		return
	}

	for _, sub := range subs {
		stats.StatusChecked++

		res, err := e.svc.transport.CheckStatus(ctx, *sub.MessageID)
		if err != nil {
			stats.Errors++
			e.logger.Warn().Err(err).
				Str("submission_id", sub.ID.String()).
				Msg("status check failed, retrying next cycle")
			continue
		}

		mapped, known := clearing.MapStatus(res.Status)
		if !known {
			stats.Errors++
			e.logger.Warn().
				Str("submission_id", sub.ID.String()).
				Str("upstream_status", res.Status).
				Msg("unrecognized upstream status, leaving submission untouched")
			continue
		}

		message := ""
		if mapped == clearing.MappedRejected {
			message = res.ErrorReason
		}

		// Some insurers never send an electronic reply. Once such a
		// submission has sat in transit past the dwell window, delivery
		// is assumed.
		if mapped == clearing.MappedTransmitted && e.dwellExpired(sub) {
			mapped = StatusDelivered
			stats.DwellDelivered++
			e.logger.Info().
				Str("submission_id", sub.ID.String()).
				Str("law_type", sub.LawType).
				Msg("dwell window passed, assuming delivery")
		}

		_, applied, err := e.svc.ApplyStatus(ctx, sub.ID, mapped, "", message)
		if err != nil {
			stats.Errors++
			e.logger.Warn().Err(err).
				Str("submission_id", sub.ID.String()).
				Msg("failed to apply polled status")
			continue
		}
		if applied {
			stats.StatusAdvanced++
		}
	}
}

// dwellExpired reports whether the dwell heuristic applies to sub: its
// law type is configured for dwell and it was transmitted longer than
// StatusDwell ago.
func (e *Engine) dwellExpired(sub *Submission) bool {
	since := sub.CreatedAt
	if sub.TransmittedAt != nil {
		since = *sub.TransmittedAt
	}
	if time.Since(since) < e.cfg.StatusDwell {
		return false
	}
	for _, lt := range e.cfg.DwellLawTypes {
		if sub.LawType == lt {
			return true
		}
	}
	return false
}

// drainDownloads fetches, parses, matches and persists every pending
// response document, confirming each upstream only after it is stored.
func (e *Engine) drainDownloads(ctx context.Context, stats *CycleStats) {
	entries, err := e.svc.transport.ListDownloads(ctx)
	if err != nil {
		stats.Errors++
		e.logger.Error().Err(err).Msg("failed to list downloads")
		return
	}

	for _, d := range entries {
		stats.Downloads++
		if err := e.processDownload(ctx, d, stats); err != nil {
			stats.Errors++
			e.logger.Warn().Err(err).
				Str("transmission_reference", d.TransmissionReference).
				Msg("download processing failed, retrying next cycle")
		}
	}
}

func (e *Engine) processDownload(ctx context.Context, d clearing.Download, stats *CycleStats) error {
	// A record that already exists means an earlier cycle stored the
	// document but died before confirming. Confirm now and move on.
	if existing, err := e.svc.responses.GetByMessageID(ctx, d.TransmissionReference); err == nil {
		stats.Duplicates++
		if err := e.svc.transport.ConfirmDownload(ctx, d.TransmissionReference); err != nil {
			return fmt.Errorf("re-confirm download: %w", err)
		}
		if !existing.Confirmed {
			return e.svc.responses.MarkConfirmed(ctx, existing.ID)
		}
		return nil
	}

	raw, err := e.svc.transport.FetchDownload(ctx, d.TransmissionReference)
	if err != nil {
		return fmt.Errorf("fetch download: %w", err)
	}
	parsed := clearing.ParseResponse(raw)

	correlation := d.CorrelationReference
	if correlation == "" {
		correlation = parsed.InvoiceNumber
	}

	candidates, err := e.svc.submissions.FindCandidates(ctx, d.TransmissionReference, correlation)
	if err != nil {
		return fmt.Errorf("find candidates: %w", err)
	}
	matched := MatchSubmission(MatchRefs{
		TransmissionReference: d.TransmissionReference,
		CorrelationReference:  correlation,
	}, candidates)

	if matched != nil {
		if st, ok := statusForResponse(parsed.Type); ok {
			_, applied, err := e.svc.ApplyStatus(ctx, matched.ID, st, parsed.ErrorCode, parsed.Explanation)
			if err != nil {
				return fmt.Errorf("apply response status: %w", err)
			}
			if applied {
				stats.StatusAdvanced++
				if st == StatusRejected {
					stats.Rejections++
				}
			}
		}
	} else {
		stats.Unmatched++
		e.logger.Warn().
			Str("transmission_reference", d.TransmissionReference).
			Str("correlation_reference", correlation).
			Msg("response matches no submission, parked for triage")
	}

	rec := &ResponseRecord{
		MessageID:    d.TransmissionReference,
		ResponseType: parsed.Type,
		RawContent:   raw,
	}
	if parsed.Explanation != "" {
		rec.Explanation = &parsed.Explanation
	}
	if parsed.InvoiceNumber != "" {
		rec.InvoiceNumber = &parsed.InvoiceNumber
	}
	if d.SenderGLN != "" {
		rec.SenderGLN = &d.SenderGLN
	}
	if d.CorrelationReference != "" {
		rec.CorrelationReference = &d.CorrelationReference
	}
	if matched != nil {
		rec.SubmissionID = &matched.ID
	}

	stored, inserted, err := e.svc.RecordResponse(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist response: %w", err)
	}
	if inserted {
		stats.Responses++
	}

	// The document is safe in our store; only now may the proxy drop it.
	if err := e.svc.transport.ConfirmDownload(ctx, d.TransmissionReference); err != nil {
		return fmt.Errorf("confirm download: %w", err)
	}
	return e.svc.responses.MarkConfirmed(ctx, stored.ID)
}

// drainNotifications records and confirms transport-level notices. Error
// and fatal notices that match a submission reject it.
func (e *Engine) drainNotifications(ctx context.Context, stats *CycleStats) {
	entries, err := e.svc.transport.ListNotifications(ctx)
	if err != nil {
		stats.Errors++
		e.logger.Error().Err(err).Msg("failed to list notifications")
		return
	}

	for _, n := range entries {
		stats.Notifications++
		if err := e.processNotification(ctx, n, stats); err != nil {
			stats.Errors++
			e.logger.Warn().Err(err).
				Str("notification_id", n.NotificationID).
				Msg("notification processing failed, retrying next cycle")
		}
	}
}

func (e *Engine) processNotification(ctx context.Context, n clearing.Notification, stats *CycleStats) error {
	if existing, err := e.svc.notifications.GetByNotificationID(ctx, n.NotificationID); err == nil {
		stats.Duplicates++
		if err := e.svc.transport.ConfirmNotification(ctx, n.NotificationID); err != nil {
			return fmt.Errorf("re-confirm notification: %w", err)
		}
		if !existing.Confirmed {
			return e.svc.notifications.MarkConfirmed(ctx, existing.ID)
		}
		return nil
	}

	severity := clearing.NormalizeSeverity(n.Severity)

	rec := &NotificationRecord{
		NotificationID: n.NotificationID,
		Severity:       severity,
		Message:        n.Message,
	}
	if n.ErrorCode != "" {
		rec.ErrorCode = &n.ErrorCode
	}

	var matched *Submission
	if n.TransmissionReference != "" {
		rec.TransmissionReference = &n.TransmissionReference
		candidates, err := e.svc.submissions.FindCandidates(ctx, n.TransmissionReference, "")
		if err != nil {
			return fmt.Errorf("find candidates: %w", err)
		}
		matched = MatchSubmission(MatchRefs{TransmissionReference: n.TransmissionReference}, candidates)
		if matched != nil {
			rec.SubmissionID = &matched.ID
		}
	}

	// An error or fatal notice about a known transmission means the
	// document will never reach the insurer.
	if matched != nil && (severity == clearing.SeverityError || severity == clearing.SeverityFatal) {
		_, applied, err := e.svc.ApplyStatus(ctx, matched.ID, StatusRejected, n.ErrorCode, n.Message)
		if err != nil {
			return fmt.Errorf("apply rejection: %w", err)
		}
		if applied {
			stats.Rejections++
		}
	}

	stored, _, err := e.svc.RecordNotification(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if err := e.svc.transport.ConfirmNotification(ctx, n.NotificationID); err != nil {
		return fmt.Errorf("confirm notification: %w", err)
	}
	if err := e.svc.notifications.MarkConfirmed(ctx, stored.ID); err != nil {
		return err
	}
	e.svc.metrics.OperationCounter("notification", "confirmed")
	return nil
}

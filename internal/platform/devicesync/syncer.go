package devicesync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/renalink/renalink/internal/domain/device"
	"github.com/renalink/renalink/internal/domain/measurement"
	"github.com/renalink/renalink/internal/platform/telemetry"
)

const (
	// DefaultSyncInterval is how often the periodic job pulls vendors.
	DefaultSyncInterval = 15 * time.Minute
	// DefaultBackfill bounds the first pull of a fresh connection.
	DefaultBackfill = 72 * time.Hour
)

// Ingester is the slice of the measurement service the syncer needs.
type Ingester interface {
	Ingest(ctx context.Context, req measurement.IngestRequest) (*measurement.IngestResult, error)
}

// Report tallies one sync cycle.
type Report struct {
	Connections int `json:"connections"`
	Failed      int `json:"failed"`
	Records     int `json:"records"`
	Accepted    int `json:"accepted"`
	Duplicates  int `json:"duplicates"`
	Skipped     int `json:"skipped"`
}

// Config tunes the periodic job. Zero values fall back to the defaults.
type Config struct {
	Interval time.Duration
	Backfill time.Duration
}

// Syncer walks active device connections and pulls each one's window of
// vendor records. Connections are isolated: a vendor outage on one never
// stalls the rest, and each cursor commits independently.
type Syncer struct {
	connections device.Repository
	ingester    Ingester
	source      RecordSource
	tel         *telemetry.TelemetryProvider
	logger      zerolog.Logger
	interval    time.Duration
	backfill    time.Duration
}

func NewSyncer(connections device.Repository, ingester Ingester, source RecordSource, tel *telemetry.TelemetryProvider, logger zerolog.Logger, cfg Config) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSyncInterval
	}
	if cfg.Backfill <= 0 {
		cfg.Backfill = DefaultBackfill
	}
	return &Syncer{
		connections: connections,
		ingester:    ingester,
		source:      source,
		tel:         tel,
		logger:      logger.With().Str("component", "devicesync").Logger(),
		interval:    cfg.Interval,
		backfill:    cfg.Backfill,
	}
}

// Run ticks until the context is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("device sync started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("device sync stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("device sync cycle failed")
			}
		}
	}
}

// RunOnce performs a single pull across all active connections.
func (s *Syncer) RunOnce(ctx context.Context) (Report, error) {
	conns, err := s.connections.ListSyncable(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list syncable connections: %w", err)
	}

	var report Report
	for _, conn := range conns {
		if err := s.syncConnection(ctx, conn, &report); err != nil {
			report.Failed++
			s.tel.DeviceSyncRun(conn.Vendor, "error")
			s.logger.Warn().Err(err).
				Str("connection_id", conn.ID.String()).
				Str("vendor", conn.Vendor).
				Msg("connection sync failed")
			continue
		}
		report.Connections++
		s.tel.DeviceSyncRun(conn.Vendor, "ok")
	}

	if report.Records > 0 || report.Failed > 0 {
		s.logger.Info().
			Int("connections", report.Connections).
			Int("failed", report.Failed).
			Int("records", report.Records).
			Int("accepted", report.Accepted).
			Int("duplicates", report.Duplicates).
			Int("skipped", report.Skipped).
			Msg("device sync cycle complete")
	}
	return report, nil
}

// syncConnection pulls one connection's window. The cursor only commits
// after every record landed (stored or recognized as duplicate); on a
// partial failure the whole window is re-pulled next cycle and the identity
// rule swallows the overlap.
func (s *Syncer) syncConnection(ctx context.Context, conn *device.Connection, report *Report) error {
	if !KnownVendor(conn.Vendor) {
		return fmt.Errorf("no code table for vendor %q", conn.Vendor)
	}

	until := time.Now().UTC()
	since := conn.CursorFrom(until, s.backfill)
	records, err := s.source.FetchRecords(ctx, conn.Vendor, conn.VendorUserID, since, until)
	if err != nil {
		return err
	}
	report.Records += len(records)

	failed := 0
	for _, r := range records {
		switch outcome := s.ingestRecord(ctx, conn, r); outcome {
		case recordAccepted:
			report.Accepted++
		case recordDuplicate:
			report.Duplicates++
		case recordSkipped:
			report.Skipped++
		case recordFailed:
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed to ingest", failed, len(records))
	}

	if err := s.connections.CommitCursor(ctx, conn.ID, until); err != nil {
		return fmt.Errorf("commit cursor: %w", err)
	}
	return nil
}

type recordOutcome int

const (
	recordAccepted recordOutcome = iota
	recordDuplicate
	recordSkipped
	recordFailed
)

func (s *Syncer) ingestRecord(ctx context.Context, conn *device.Connection, r VendorRecord) recordOutcome {
	if r.RecordID == "" {
		s.logger.Warn().
			Str("vendor", conn.Vendor).
			Str("code", r.Code).
			Msg("vendor record without id skipped")
		return recordSkipped
	}
	mapping, ok := Resolve(conn.Vendor, r.Code)
	if !ok {
		s.logger.Debug().
			Str("vendor", conn.Vendor).
			Str("code", r.Code).
			Msg("unmapped vendor code skipped")
		return recordSkipped
	}

	externalID := r.RecordID
	result, err := s.ingester.Ingest(ctx, measurement.IngestRequest{
		PatientID:  conn.PatientID,
		Type:       mapping.Type,
		Value:      mapping.Apply(r.Value),
		Unit:       mapping.Unit,
		MeasuredAt: r.MeasuredAt,
		Source:     conn.Vendor,
		ExternalID: &externalID,
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("vendor", conn.Vendor).
			Str("record_id", r.RecordID).
			Msg("vendor record rejected")
		return recordFailed
	}
	if result.IsDuplicate {
		return recordDuplicate
	}
	return recordAccepted
}

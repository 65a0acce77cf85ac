package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"duchybank/internal/amqp"
	"duchybank/internal/sheets"
	"duchybank/internal/storage"
)

// ExportWorker copies committed sessions from SQLite to the treasurer's
// Google Sheet. It is driven by AMQP ledger events, with a periodic sweep
// over unexported sessions as a backup in case messages are lost.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	sheets    sheets.SessionAppender
	batchSize int
}

func NewExportWorker(storage *storage.SQLiteRepository, sheets sheets.SessionAppender, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		sheets:    sheets,
		batchSize: batchSize,
	}
}

// HandleLedgerEvent processes a single ledger event from AMQP. Only
// session commits produce spreadsheet rows; roster updates and session
// deletions are acknowledged and skipped.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if msg.Kind != amqp.KindSessionCommitted {
		slog.DebugContext(ctx, "Ignoring ledger event", "kind", msg.Kind, "id", msg.ID)
		return nil
	}

	if err := w.exportSession(ctx, msg.ID); err != nil {
		// The session may have been deleted before the event was consumed.
		if errors.Is(err, storage.ErrSessionNotFound) {
			slog.WarnContext(ctx, "Session gone before export, skipping", "session_id", msg.ID)
			return nil
		}
		return err
	}
	return nil
}

// ProcessPendingSessions exports any sessions that have not reached the
// spreadsheet yet. This is the backup path for missed AMQP messages.
func (w *ExportWorker) ProcessPendingSessions(ctx context.Context) error {
	pending, err := w.storage.ListUnexportedSessions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unexported sessions: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending session exports", "count", len(pending))

	for _, rec := range pending {
		if err := w.exportSession(ctx, rec.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export session",
				"session_id", rec.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupExportCheck drains the export backlog once at worker startup,
// recovering from downtime while commits kept happening.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	pending, err := w.storage.ListUnexportedSessions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list unexported sessions for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending session exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending session exports on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0
	for _, rec := range pending {
		if err := w.exportSession(ctx, rec.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export session during startup",
				"session_id", rec.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

func (w *ExportWorker) exportSession(ctx context.Context, id string) error {
	rec, err := w.storage.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("get session from storage: %w", err)
	}

	ref, err := w.sheets.AppendSession(ctx, rec)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.storage.MarkSessionExported(ctx, id); err != nil {
		// The rows landed; failing here would re-append them on retry.
		slog.ErrorContext(ctx, "Failed to mark session as exported", "session_id", id, "error", err)
	}

	slog.InfoContext(ctx, "Exported session",
		"session_id", id,
		"opponent", rec.Opponent,
		"transactions", len(rec.Transactions),
		"sheets_ref", ref)

	return nil
}

package worker

import (
	"context"
	"log/slog"

	"duchybank/internal/sheets"
	"duchybank/internal/sheets/google"
	"duchybank/internal/sheets/memory"
)

// SheetsConfig selects and configures the export destination.
type SheetsConfig struct {
	SpreadsheetID string
	SheetName     string
}

// NewAppender builds the session appender for the export pipeline. A
// configured spreadsheet gets a Google Sheets client; otherwise sessions
// land in an in-memory sink so local setups still mark them exported.
func NewAppender(ctx context.Context, cfg SheetsConfig) (sheets.SessionAppender, error) {
	if cfg.SpreadsheetID == "" {
		slog.Warn("No spreadsheet configured, using in-memory export sink")
		return memory.New(), nil
	}

	client, err := google.New(ctx, cfg.SpreadsheetID, cfg.SheetName)
	if err != nil {
		return nil, err
	}

	slog.Info("Exporting sessions to Google Sheets", "spreadsheet_id", cfg.SpreadsheetID)
	return client, nil
}

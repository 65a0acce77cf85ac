package sheets

import (
	"context"

	"duchybank/internal/core"
)

// Ports for outbound adapters.
type (
	// SessionAppender writes a committed session to the treasurer's
	// spreadsheet, one row per transaction.
	SessionAppender interface {
		AppendSession(ctx context.Context, rec core.SessionRecord) (rowRef string, err error)
	}
)

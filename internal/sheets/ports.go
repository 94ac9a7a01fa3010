package sheets

import (
	"context"

	"finanzas/internal/core"
)

// Ports for outbound adapters.
type (
	// ExportWriter publishes an expense export to an external sheet and
	// returns a reference to where the rows landed.
	ExportWriter interface {
		WriteExport(ctx context.Context, export core.Export) (ref string, err error)
	}
)

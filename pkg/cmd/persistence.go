package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casaflow/casaflow/pkg/persistence"
	"github.com/casaflow/casaflow/pkg/persistence/file"
	"github.com/casaflow/casaflow/pkg/persistence/postgresql"
)

// NewPersistence picks the backend from the database URL scheme.
// postgres:// and postgresql:// select PostgreSQL, anything else is
// treated as a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if found && (scheme == "postgres" || scheme == "postgresql") {
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgresql persistence: %w", err)
		}

		return p, nil
	}

	return file.NewPersistence(databaseURL), nil
}

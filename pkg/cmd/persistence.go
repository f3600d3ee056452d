package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	crmpostgres "github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm/postgres"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence/file"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence/postgresql"
)

// NewPersistence opens the workflow store named by databaseURL. postgres://
// and postgresql:// URLs use PostgreSQL; anything else is a file:// root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

// NewCRMStore opens the CRM entity store. An empty URL or "memory" keeps
// records in process.
func NewCRMStore(ctx context.Context, databaseURL string) (crm.Store, func(), error) {
	if parseProvider(databaseURL) != "postgresql" {
		return crm.NewMemoryStore(), func() {}, nil
	}

	store, err := crmpostgres.Connect(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}

	return store, store.Close, nil
}

func parseProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return scheme
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/otpbazaar/golang_services/internal/cancellation_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/database"
)

// serverTables are searched in order; the first match wins.
var serverTables = []string{"otp_servers", "api_servers"}

type PgServerConfigRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgServerConfigRepository(db database.DB, logger *slog.Logger) *PgServerConfigRepository {
	return &PgServerConfigRepository{db: db, logger: logger.With("component", "server_config_repository")}
}

func (r *PgServerConfigRepository) FindServerConfig(ctx context.Context, serverID string) (*domain.ServerConfig, error) {
	for _, table := range serverTables {
		query := fmt.Sprintf(`
			SELECT id::text, COALESCE(name, ''), COALESCE(cancel_url, ''), COALESCE(auth_header_name, ''), COALESCE(auth_header_value, '')
			FROM %s
			WHERE id::text = $1`, table)

		cfg := domain.ServerConfig{Source: table}
		err := r.db.QueryRow(ctx, query, serverID).Scan(&cfg.ID, &cfg.Name, &cfg.CancelURL, &cfg.AuthHeaderName, &cfg.AuthHeaderValue)
		if err == nil {
			return &cfg, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.ErrorContext(ctx, "Error looking up server config", "error", err, "table", table, "server_id", serverID)
			return nil, fmt.Errorf("lookup server %s in %s: %w", serverID, table, err)
		}
	}
	return nil, domain.ErrServerConfigNotFound
}

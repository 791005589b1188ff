package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"shopfloor-service/internal/client"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/util"
)

// SettingsRepository stores the single shop settings row and the named
// drop-off locations. The admin PIN hash lives on the settings row.
type SettingsRepository interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	UpdateSettings(ctx context.Context, shopName, currency, labelPrinter string) error
	GetAdminPinHash(ctx context.Context) (string, error)
	UpdateAdminPinHash(ctx context.Context, pinHash string) error

	CreateLocation(ctx context.Context, location *models.Location) error
	ListLocations(ctx context.Context) ([]*models.Location, error)
	DeleteLocation(ctx context.Context, locationID string) error

	HealthCheck(ctx context.Context) error
}

type settingsRepository struct {
	client *client.PostgresClient
}

func NewSettingsRepository(pgClient *client.PostgresClient, logger *zap.Logger) SettingsRepository {
	return &settingsRepository{client: pgClient}
}

// The settings table holds exactly one row keyed by id = 1.
func (r *settingsRepository) GetSettings(ctx context.Context) (*models.Settings, error) {
	settings := &models.Settings{}
	row := r.client.Pool.QueryRow(ctx, `
		SELECT shop_name, currency, admin_pin_hash, label_printer, updated_at
		FROM shop_settings WHERE id = 1`)
	if err := row.Scan(&settings.ShopName, &settings.Currency, &settings.AdminPinHash,
		&settings.LabelPrinter, &settings.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

func (r *settingsRepository) UpdateSettings(ctx context.Context, shopName, currency, labelPrinter string) error {
	tag, err := r.client.Pool.Exec(ctx, `
		UPDATE shop_settings SET shop_name = $1, currency = $2, label_printer = $3, updated_at = $4
		WHERE id = 1`,
		shopName, currency, labelPrinter, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	util.Info("Shop settings updated", zap.String("shop_name", shopName))
	return nil
}

func (r *settingsRepository) GetAdminPinHash(ctx context.Context) (string, error) {
	var hash string
	row := r.client.Pool.QueryRow(ctx, `SELECT admin_pin_hash FROM shop_settings WHERE id = 1`)
	if err := row.Scan(&hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get admin pin hash: %w", err)
	}
	return hash, nil
}

func (r *settingsRepository) UpdateAdminPinHash(ctx context.Context, pinHash string) error {
	tag, err := r.client.Pool.Exec(ctx, `
		UPDATE shop_settings SET admin_pin_hash = $1, updated_at = $2 WHERE id = 1`,
		pinHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update admin pin hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	util.Info("Admin PIN updated")
	return nil
}

func (r *settingsRepository) CreateLocation(ctx context.Context, location *models.Location) error {
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}

	_, err := r.client.Pool.Exec(ctx, `
		INSERT INTO locations (location_id, name, notes, created_at)
		VALUES ($1, $2, $3, $4)`,
		location.LocationID, location.Name, location.Notes, location.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create location: %w", err)
	}
	return nil
}

func (r *settingsRepository) ListLocations(ctx context.Context) ([]*models.Location, error) {
	rows, err := r.client.Pool.Query(ctx, `
		SELECT location_id, name, notes, created_at FROM locations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []*models.Location
	for rows.Next() {
		location := &models.Location{}
		if err := rows.Scan(&location.LocationID, &location.Name, &location.Notes, &location.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, location)
	}
	return locations, rows.Err()
}

func (r *settingsRepository) DeleteLocation(ctx context.Context, locationID string) error {
	tag, err := r.client.Pool.Exec(ctx, `DELETE FROM locations WHERE location_id = $1`, locationID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrHistoryProtected
		}
		return fmt.Errorf("failed to delete location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *settingsRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

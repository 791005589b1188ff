package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"shopfloor-service/internal/hashing"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/permission"
	"shopfloor-service/internal/repository/postgres"
	"shopfloor-service/internal/util"
)

// SettingsService covers shop configuration, the admin PIN, and locations.
type SettingsService struct {
	settings postgres.SettingsRepository
	hasher   *hashing.Hasher
}

func NewSettingsService(settings postgres.SettingsRepository, hasher *hashing.Hasher) *SettingsService {
	return &SettingsService{
		settings: settings,
		hasher:   hasher,
	}
}

func (s *SettingsService) GetSettings(ctx context.Context, p *models.Principal) (*models.Settings, error) {
	if err := requirePermission(p, permission.ManageSettings); err != nil {
		return nil, err
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return settings, nil
}

func (s *SettingsService) UpdateSettings(ctx context.Context, p *models.Principal, shopName, currency, labelPrinter string) error {
	if err := requirePermission(p, permission.ManageSettings); err != nil {
		return err
	}

	shopName = util.SanitizeAuditField(shopName)
	if shopName == "" {
		return fmt.Errorf("%w: shop_name is required", ErrValidation)
	}
	if currency == "" {
		return fmt.Errorf("%w: currency is required", ErrValidation)
	}

	if err := s.settings.UpdateSettings(ctx, shopName, currency, labelPrinter); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// ChangeAdminPin rehashes and stores the shop admin PIN.
func (s *SettingsService) ChangeAdminPin(ctx context.Context, p *models.Principal, newPin string) error {
	if err := requirePermission(p, permission.ManageSettings); err != nil {
		return err
	}
	if !pinPattern.MatchString(newPin) {
		return fmt.Errorf("%w: pin must be 4 to 8 digits", ErrValidation)
	}

	pinHash, err := s.hasher.Hash(newPin)
	if err != nil {
		return fmt.Errorf("failed to hash admin pin: %w", err)
	}
	if err := s.settings.UpdateAdminPinHash(ctx, pinHash); err != nil {
		return mapRepoError(err)
	}
	return nil
}

func (s *SettingsService) CreateLocation(ctx context.Context, p *models.Principal, name, notes string) (*models.Location, error) {
	if err := requirePermission(p, permission.ManageLocations); err != nil {
		return nil, err
	}

	name = util.SanitizeAuditField(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	location := &models.Location{
		LocationID: uuid.NewString(),
		Name:       name,
		Notes:      util.SanitizeAuditField(notes),
	}
	if err := s.settings.CreateLocation(ctx, location); err != nil {
		return nil, mapRepoError(err)
	}
	return location, nil
}

// ListLocations is readable by staff; the intake form needs it.
func (s *SettingsService) ListLocations(ctx context.Context, p *models.Principal) ([]*models.Location, error) {
	if err := requirePermission(p, permission.ViewTicket); err != nil {
		return nil, err
	}
	locations, err := s.settings.ListLocations(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return locations, nil
}

func (s *SettingsService) DeleteLocation(ctx context.Context, p *models.Principal, locationID string) error {
	if err := requirePermission(p, permission.ManageLocations); err != nil {
		return err
	}
	if err := s.settings.DeleteLocation(ctx, locationID); err != nil {
		return mapRepoError(err)
	}
	return nil
}

package service

import (
	"shopfloor-service/internal/audit"
	"shopfloor-service/internal/config"
	"shopfloor-service/internal/encryption"
	"shopfloor-service/internal/hashing"
	"shopfloor-service/internal/ratelimit"
	"shopfloor-service/internal/repository/postgres"
	"shopfloor-service/internal/search"
)

// ServiceFactory builds service singletons over the shared repositories.
type ServiceFactory struct {
	cfg       *config.Config
	sessions  SessionStore
	limiter   ratelimit.Limiter
	hasher    *hashing.Hasher
	crypto    *encryption.Manager
	auditor   *audit.Publisher
	indexer   *search.Indexer
	employees postgres.EmployeeRepository
	tickets   postgres.TicketRepository
	settings  postgres.SettingsRepository

	authService     *AuthService
	ticketService   *TicketService
	employeeService *EmployeeService
	settingsService *SettingsService
}

func NewServiceFactory(
	cfg *config.Config,
	sessions SessionStore,
	limiter ratelimit.Limiter,
	hasher *hashing.Hasher,
	crypto *encryption.Manager,
	auditor *audit.Publisher,
	indexer *search.Indexer,
	employees postgres.EmployeeRepository,
	tickets postgres.TicketRepository,
	settings postgres.SettingsRepository,
) *ServiceFactory {
	return &ServiceFactory{
		cfg:       cfg,
		sessions:  sessions,
		limiter:   limiter,
		hasher:    hasher,
		crypto:    crypto,
		auditor:   auditor,
		indexer:   indexer,
		employees: employees,
		tickets:   tickets,
		settings:  settings,
	}
}

func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(f.sessions, f.limiter, f.hasher, f.employees, f.settings, f.auditor)
	}
	return f.authService
}

func (f *ServiceFactory) TicketService() *TicketService {
	if f.ticketService == nil {
		f.ticketService = NewTicketService(f.tickets, f.employees, f.crypto, f.auditor, f.indexer, f.cfg.Uploads)
	}
	return f.ticketService
}

func (f *ServiceFactory) EmployeeService() *EmployeeService {
	if f.employeeService == nil {
		f.employeeService = NewEmployeeService(f.employees, f.hasher, f.AuthService())
	}
	return f.employeeService
}

func (f *ServiceFactory) SettingsService() *SettingsService {
	if f.settingsService == nil {
		f.settingsService = NewSettingsService(f.settings, f.hasher)
	}
	return f.settingsService
}

// Cleanup drops cached key material.
func (f *ServiceFactory) Cleanup() {
	if f.crypto != nil {
		f.crypto.ClearCache()
	}
}

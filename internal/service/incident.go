package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/bus"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/sirupsen/logrus"
)

// karmaPointsPerRescue - очки за каждую закрытую заявку репортёра
const karmaPointsPerRescue = 50

// IncidentRepository определяет контракт для работы с хранилищем инцидентов
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ConditionalTransition(ctx context.Context, id uuid.UUID, expected, next models.State, claimantID string) (*models.Incident, error)
	UnconditionalTransition(ctx context.Context, id uuid.UUID, next models.State) (*models.Incident, error)
	FindNearByState(ctx context.Context, lat, lon, radiusMeters float64, state models.State) ([]*models.Incident, error)
	CountByReporterAndState(ctx context.Context, reporterID string, state models.State) (int, error)
	CountByReporter(ctx context.Context, reporterID string) (int, error)
	ListByReporter(ctx context.Context, reporterID string) ([]*models.Incident, error)
	ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// IncidentService определяет контракт для бизнес-логики координации спасения
type IncidentService interface {
	CreateReport(ctx context.Context, incident *models.Incident) error
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	FindOpenNear(ctx context.Context, lat, lon, radiusKm float64) ([]*models.Incident, error)
	ClaimIncident(ctx context.Context, id uuid.UUID, organizationID string) (*models.Incident, error)
	ResolveIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SnapshotFor(ctx context.Context, reporterID string) (int, error)
	LiveStatsFor(ctx context.Context, reporterID string) (*models.ReporterStats, error)
	ListReporterIncidents(ctx context.Context, reporterID string) ([]*models.Incident, error)
}

type incidentService struct {
	repo      IncidentRepository
	logger    *logrus.Logger
	cfg       *config.Config
	publisher bus.Publisher
}

func NewIncidentService(repo IncidentRepository, logger *logrus.Logger, cfg *config.Config, publisher bus.Publisher) IncidentService {
	return &incidentService{
		repo:      repo,
		logger:    logger,
		cfg:       cfg,
		publisher: publisher,
	}
}

// publishEvent публикует событие жизненного цикла. Ошибка публикации
// логируется и глотается: доставка best-effort и не должна влиять
// на уже состоявшийся переход.
func (s *incidentService) publishEvent(ctx context.Context, eventType bus.EventType, incident *models.Incident) {
	event := bus.Event{
		Type:      eventType,
		Incident:  incident,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":  eventType,
			"incident_id": incident.ID,
		}).Warn("Failed to publish incident event")
	}
}

// CreateReport создает новую заявку: ставит состояние open, снимает
// текущий trust-снимок репортёра и анонсирует событие created
func (s *incidentService) CreateReport(ctx context.Context, incident *models.Incident) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "CreateReport",
		"reporter_id": incident.ReporterID,
	})
	log.Info("Attempting to create a new rescue report")

	// Снимок доверия фиксируется на момент создания и потом не пересчитывается
	trust, err := s.SnapshotFor(ctx, incident.ReporterID)
	if err != nil {
		log.WithError(err).Error("Failed to snapshot reporter trust")
		return fmt.Errorf("service: could not snapshot reporter trust: %w", err)
	}

	incident.State = models.StateOpen
	incident.ReporterTrust = trust
	if err := s.repo.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return fmt.Errorf("service: could not create incident: %w", err)
	}

	log.WithField("incident_id", incident.ID).Info("Rescue report created successfully")
	s.publishEvent(ctx, bus.EventCreated, incident)
	return nil
}

// GetIncident получает инцидент по ID, сначала из кеша, затем из бд
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})

	cached, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident from cache")
	}
	if cached != nil {
		return cached, nil
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident from repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.repo.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}
	return incident, nil
}

// ListIncidents возвращает список инцидентов с пагинацией
func (s *incidentService) ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"page":      page,
		"page_size": pageSize,
	})

	incidents, err := s.repo.ListIncidents(ctx, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incidents listed successfully")
	return incidents, nil
}

// FindOpenNear находит открытые инциденты в радиусе от точки, ближайшие
// первыми. Кеш не используется: каждый вызов обращается к живому состоянию,
// устаревший результат обернулся бы лишними ClaimIncident с исходом Conflict.
func (s *incidentService) FindOpenNear(ctx context.Context, lat, lon, radiusKm float64) ([]*models.Incident, error) {
	if radiusKm <= 0 {
		radiusKm = s.cfg.DefaultSearchRadiusKm
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "FindOpenNear",
		"radius_km": radiusKm,
	})

	incidents, err := s.repo.FindNearByState(ctx, lat, lon, radiusKm*1000, models.StateOpen)
	if err != nil {
		log.WithError(err).Error("Failed to find open incidents by location")
		return nil, fmt.Errorf("service: could not find open incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Open incidents discovered")
	return incidents, nil
}

// ClaimIncident выполняет атомарный переход open -> claimed в пользу
// организации. Из любого числа конкурентных вызовов успешным будет ровно
// один, остальные получат ErrStateConflict - это штатный исход гонки,
// а не ошибка системы.
func (s *incidentService) ClaimIncident(ctx context.Context, id uuid.UUID, organizationID string) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":         "incident",
		"method":          "ClaimIncident",
		"incident_id":     id,
		"organization_id": organizationID,
	})
	log.Info("Attempting to claim incident")

	incident, err := s.repo.ConditionalTransition(ctx, id, models.StateOpen, models.StateClaimed, organizationID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrStateConflict):
			log.Info("Incident already claimed by another organization")
		case errors.Is(err, models.ErrIncidentNotFound):
			log.Warn("Attempted to claim a non-existent incident")
		default:
			log.WithError(err).Error("Failed to claim incident in repository")
		}
		return nil, fmt.Errorf("service: could not claim incident: %w", err)
	}

	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}

	log.Info("Incident claimed successfully")
	s.publishEvent(ctx, bus.EventClaimed, incident)
	return incident, nil
}

// ResolveIncident выполняет переход claimed -> resolved. Принадлежность
// заявки вызывающей организации повторно не проверяется (принятое
// упрощение), но из состояния, отличного от claimed, переход запрещён:
// open -> resolved получить нельзя.
func (s *incidentService) ResolveIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "ResolveIncident",
		"incident_id": id,
	})
	log.Info("Attempting to resolve incident")

	// Читаем напрямую из бд: кеш может отдать устаревшее состояние
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to resolve a non-existent incident")
		return nil, fmt.Errorf("service: could not resolve incident: %w", err)
	}
	if !current.State.CanTransitionTo(models.StateResolved) {
		log.WithField("state", current.State).Info("Incident is not claimed, refusing to resolve")
		return nil, fmt.Errorf("service: incident %s is in state %q: %w", id, current.State, models.ErrStateConflict)
	}

	// Гонки за resolve по построению нет: владелец уже определён,
	// поэтому достаточно безусловного перехода
	incident, err := s.repo.UnconditionalTransition(ctx, id, models.StateResolved)
	if err != nil {
		log.WithError(err).Error("Failed to resolve incident in repository")
		return nil, fmt.Errorf("service: could not resolve incident: %w", err)
	}

	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}

	log.Info("Incident resolved successfully")
	s.publishEvent(ctx, bus.EventResolved, incident)
	return incident, nil
}

// SnapshotFor возвращает текущее число закрытых заявок репортёра.
// Значение штампуется на новые инциденты как снимок доверия.
func (s *incidentService) SnapshotFor(ctx context.Context, reporterID string) (int, error) {
	resolved, err := s.repo.CountByReporterAndState(ctx, reporterID, models.StateResolved)
	if err != nil {
		return 0, fmt.Errorf("service: could not count resolved incidents: %w", err)
	}
	return resolved, nil
}

// LiveStatsFor пересчитывает живую статистику репортёра по запросу.
// Счётчики нигде не хранятся, поэтому расхождений с фактом не бывает.
func (s *incidentService) LiveStatsFor(ctx context.Context, reporterID string) (*models.ReporterStats, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "LiveStatsFor",
		"reporter_id": reporterID,
	})

	resolved, err := s.repo.CountByReporterAndState(ctx, reporterID, models.StateResolved)
	if err != nil {
		log.WithError(err).Error("Failed to count resolved incidents")
		return nil, fmt.Errorf("service: could not count resolved incidents: %w", err)
	}
	total, err := s.repo.CountByReporter(ctx, reporterID)
	if err != nil {
		log.WithError(err).Error("Failed to count reporter incidents")
		return nil, fmt.Errorf("service: could not count reporter incidents: %w", err)
	}

	return &models.ReporterStats{
		ResolvedCount: resolved,
		TotalCount:    total,
		KarmaPoints:   resolved * karmaPointsPerRescue,
	}, nil
}

// ListReporterIncidents возвращает заявки репортёра, новые первыми
func (s *incidentService) ListReporterIncidents(ctx context.Context, reporterID string) ([]*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "ListReporterIncidents",
		"reporter_id": reporterID,
	})

	incidents, err := s.repo.ListByReporter(ctx, reporterID)
	if err != nil {
		log.WithError(err).Error("Failed to list reporter incidents")
		return nil, fmt.Errorf("service: could not list reporter incidents: %w", err)
	}
	return incidents, nil
}

package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/routing"
	"github.com/sirupsen/logrus"
)

// RoutePlanner определяет контракт клиента внешнего сервиса маршрутизации
type RoutePlanner interface {
	Trip(ctx context.Context, originLat, originLon float64, waypoints []routing.Waypoint) (*models.RoutePlan, error)
}

// RouteService определяет контракт построения пакетных маршрутов
type RouteService interface {
	PlanRoute(ctx context.Context, originLat, originLon float64, incidentIDs []uuid.UUID) (*models.RoutePlan, error)
}

type routeService struct {
	repo    IncidentRepository
	planner RoutePlanner
	logger  *logrus.Logger
}

func NewRouteService(repo IncidentRepository, planner RoutePlanner, logger *logrus.Logger) RouteService {
	return &routeService{
		repo:    repo,
		planner: planner,
		logger:  logger,
	}
}

// PlanRoute строит порядок объезда выбранных заявок из текущей позиции
// организации. Предусловия (минимум две точки, все id существуют)
// проверяются до обращения к внешнему сервису. Провал маршрутизации
// не фатален: заявки остаются за организацией.
func (s *routeService) PlanRoute(ctx context.Context, originLat, originLon float64, incidentIDs []uuid.UUID) (*models.RoutePlan, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "route",
		"method":    "PlanRoute",
		"waypoints": len(incidentIDs),
	})

	if len(incidentIDs) < 2 {
		log.Info("Refusing to plan a route with fewer than two waypoints")
		return nil, fmt.Errorf("service: got %d incident ids: %w", len(incidentIDs), models.ErrNotEnoughWaypoints)
	}

	waypoints := make([]routing.Waypoint, 0, len(incidentIDs))
	for _, id := range incidentIDs {
		incident, err := s.repo.GetByID(ctx, id)
		if err != nil {
			log.WithError(err).WithField("incident_id", id).Warn("Failed to resolve route waypoint")
			return nil, fmt.Errorf("service: could not resolve waypoint %s: %w", id, err)
		}
		waypoints = append(waypoints, routing.Waypoint{
			IncidentID: incident.ID,
			Longitude:  incident.Longitude,
			Latitude:   incident.Latitude,
		})
	}

	plan, err := s.planner.Trip(ctx, originLat, originLon, waypoints)
	if err != nil {
		log.WithError(err).Warn("Routing service failed to plan a trip")
		return nil, fmt.Errorf("service: could not plan route: %w", err)
	}

	log.WithFields(logrus.Fields{
		"distance_meters":  plan.DistanceMeters,
		"duration_seconds": plan.DurationSeconds,
	}).Info("Route planned successfully")
	return plan, nil
}

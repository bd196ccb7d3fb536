package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/routing"
	"github.com/shenikar/rescue_dispatch_system/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestRouteService(t *testing.T) (RouteService, *mocks.MockIncidentRepository, *mocks.MockRoutePlanner) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockIncidentRepository(ctrl)
	plannerMock := mocks.NewMockRoutePlanner(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	return NewRouteService(repoMock, plannerMock, logger), repoMock, plannerMock
}

func TestPlanRoute_RefusesSingleWaypoint(t *testing.T) {
	// Подготовка
	service, _, _ := newTestRouteService(t)
	ctx := context.Background()

	// Действие: планировщик и репозиторий не должны вызываться вовсе
	plan, err := service.PlanRoute(ctx, 55.75, 37.61, []uuid.UUID{uuid.New()})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotEnoughWaypoints)
	assert.Nil(t, plan)
}

func TestPlanRoute_Success(t *testing.T) {
	// Подготовка
	service, repoMock, plannerMock := newTestRouteService(t)
	ctx := context.Background()
	firstID := uuid.New()
	secondID := uuid.New()
	first := &models.Incident{ID: firstID, Latitude: 55.76, Longitude: 37.62}
	second := &models.Incident{ID: secondID, Latitude: 55.70, Longitude: 37.50}
	expectedPlan := &models.RoutePlan{
		OrderedIncidentIDs: []uuid.UUID{secondID, firstID},
		DistanceMeters:     12500,
		DurationSeconds:    1800,
	}

	// Ожидания
	repoMock.EXPECT().
		GetByID(ctx, firstID).
		Return(first, nil).
		Times(1)
	repoMock.EXPECT().
		GetByID(ctx, secondID).
		Return(second, nil).
		Times(1)
	plannerMock.EXPECT().
		Trip(ctx, 55.75, 37.61, []routing.Waypoint{
			{IncidentID: firstID, Longitude: 37.62, Latitude: 55.76},
			{IncidentID: secondID, Longitude: 37.50, Latitude: 55.70},
		}).
		Return(expectedPlan, nil).
		Times(1)

	// Действие
	plan, err := service.PlanRoute(ctx, 55.75, 37.61, []uuid.UUID{firstID, secondID})

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedPlan, plan)
}

func TestPlanRoute_WaypointNotFound(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestRouteService(t)
	ctx := context.Background()
	firstID := uuid.New()
	secondID := uuid.New()

	// Ожидания: первый id не найден, до планировщика дело не доходит
	repoMock.EXPECT().
		GetByID(ctx, firstID).
		Return(nil, models.ErrIncidentNotFound).
		Times(1)

	// Действие
	plan, err := service.PlanRoute(ctx, 55.75, 37.61, []uuid.UUID{firstID, secondID})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
	assert.Nil(t, plan)
}

func TestPlanRoute_RoutingFailure(t *testing.T) {
	// Подготовка
	service, repoMock, plannerMock := newTestRouteService(t)
	ctx := context.Background()
	firstID := uuid.New()
	secondID := uuid.New()

	// Ожидания
	repoMock.EXPECT().
		GetByID(ctx, firstID).
		Return(&models.Incident{ID: firstID}, nil).
		Times(1)
	repoMock.EXPECT().
		GetByID(ctx, secondID).
		Return(&models.Incident{ID: secondID}, nil).
		Times(1)
	plannerMock.EXPECT().
		Trip(ctx, 55.75, 37.61, gomock.Any()).
		Return(nil, models.ErrRoutingFailure).
		Times(1)

	// Действие
	plan, err := service.PlanRoute(ctx, 55.75, 37.61, []uuid.UUID{firstID, secondID})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRoutingFailure)
	assert.Nil(t, plan)
}

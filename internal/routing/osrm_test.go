package routing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOSRMClient(baseURL string) *OSRMClient {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewOSRMClient(baseURL, time.Second, logger)
}

func TestTrip_Success(t *testing.T) {
	// Подготовка: сервис возвращает объезд в обратном входному порядке
	var requestedPath string
	var requestedQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		requestedQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": "Ok",
			"trips": [{
				"geometry": {"type": "LineString", "coordinates": [[37.61, 55.75], [37.5, 55.7], [37.62, 55.76]]},
				"distance": 12500.5,
				"duration": 1800.2
			}],
			"waypoints": [
				{"waypoint_index": 0},
				{"waypoint_index": 2},
				{"waypoint_index": 1}
			]
		}`))
	}))
	defer server.Close()

	client := newTestOSRMClient(server.URL)
	firstID := uuid.New()
	secondID := uuid.New()

	// Действие
	plan, err := client.Trip(context.Background(), 55.75, 37.61, []Waypoint{
		{IncidentID: firstID, Longitude: 37.62, Latitude: 55.76},
		{IncidentID: secondID, Longitude: 37.5, Latitude: 55.7},
	})

	// Проверки: долгота первая, позиция организации первой парой
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(requestedPath, "/trip/v1/driving/37.61,55.75;37.62,55.76;37.5,55.7"), requestedPath)
	assert.Contains(t, requestedQuery, "source=first")
	assert.Contains(t, requestedQuery, "destination=any")
	assert.Contains(t, requestedQuery, "roundtrip=false")

	// Порядок объезда восстановлен по waypoint_index: second раньше first
	assert.Equal(t, []uuid.UUID{secondID, firstID}, plan.OrderedIncidentIDs)
	assert.Equal(t, 12500.5, plan.DistanceMeters)
	assert.Equal(t, 1800.2, plan.DurationSeconds)
	assert.Equal(t, "LineString", plan.Geometry.Type)
	assert.Len(t, plan.Geometry.Coordinates, 3)
}

func TestTrip_NotOkCode(t *testing.T) {
	// Подготовка
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": "NoRoute", "trips": [], "waypoints": []}`))
	}))
	defer server.Close()

	client := newTestOSRMClient(server.URL)

	// Действие
	plan, err := client.Trip(context.Background(), 55.75, 37.61, []Waypoint{
		{IncidentID: uuid.New(), Longitude: 37.62, Latitude: 55.76},
		{IncidentID: uuid.New(), Longitude: 37.5, Latitude: 55.7},
	})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRoutingFailure)
	assert.Nil(t, plan)
}

func TestTrip_ServerError(t *testing.T) {
	// Подготовка
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestOSRMClient(server.URL)

	// Действие
	_, err := client.Trip(context.Background(), 55.75, 37.61, []Waypoint{
		{IncidentID: uuid.New(), Longitude: 37.62, Latitude: 55.76},
		{IncidentID: uuid.New(), Longitude: 37.5, Latitude: 55.7},
	})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRoutingFailure)
}

func TestTrip_Timeout(t *testing.T) {
	// Подготовка: сервис отвечает дольше таймаута клиента
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	client := NewOSRMClient(server.URL, 10*time.Millisecond, logger)

	// Действие
	_, err := client.Trip(context.Background(), 55.75, 37.61, []Waypoint{
		{IncidentID: uuid.New(), Longitude: 37.62, Latitude: 55.76},
		{IncidentID: uuid.New(), Longitude: 37.5, Latitude: 55.7},
	})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRoutingFailure)
}

func TestTrip_WaypointCountMismatch(t *testing.T) {
	// Подготовка: ответ без пары для каждой входной точки
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": "Ok",
			"trips": [{"geometry": {"type": "LineString", "coordinates": []}, "distance": 1, "duration": 1}],
			"waypoints": [{"waypoint_index": 0}]
		}`))
	}))
	defer server.Close()

	client := newTestOSRMClient(server.URL)

	// Действие
	_, err := client.Trip(context.Background(), 55.75, 37.61, []Waypoint{
		{IncidentID: uuid.New(), Longitude: 37.62, Latitude: 55.76},
		{IncidentID: uuid.New(), Longitude: 37.5, Latitude: 55.7},
	})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRoutingFailure)
}

package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/bus"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// newTestHandler создает новый экземпляр Handler с мокированными сервисами
func newTestHandler(t *testing.T) (*mocks.MockIncidentService, *mocks.MockRouteService, *gin.Engine) {
	ctrl := gomock.NewController(t)
	mockIncidents := mocks.NewMockIncidentService(ctrl)
	mockRoutes := mocks.NewMockRouteService(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		APIKeys:               []string{"test-api-key"},
		DefaultSearchRadiusKm: 10,
	}

	broker := bus.NewBroker(logger)
	policy := NewEmailAllowListPolicy([]string{"ops@rescue.example"})
	handler := NewHandler(mockIncidents, mockRoutes, broker, policy, logger, cfg)

	// Настройка Gin роутера для тестов
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler.RegisterRoutes(router)

	return mockIncidents, mockRoutes, router
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", "test-api-key")
	for _, h := range headers {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var operatorHeaders = map[string]string{"X-Operator-Email": "ops@rescue.example"}

func TestCreateReport_Success(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	incidentID := uuid.New()
	reqBody := CreateReportRequest{
		ReporterID:  "reporter-42",
		ImageURL:    "https://example.com/photo.jpg",
		Description: "Injured dog near the park entrance",
		Latitude:    55.7558,
		Longitude:   37.6173,
	}

	mockIncidents.EXPECT().
		CreateReport(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			inc.ID = incidentID
			inc.State = models.StateOpen
			inc.CreatedAt = time.Now()
			inc.UpdatedAt = time.Now()
			return nil
		}).Times(1)

	bodyBytes, _ := json.Marshal(reqBody)
	w := makeRequest(router, "POST", "/api/v1/reports", bytes.NewBuffer(bodyBytes))

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp IncidentResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, incidentID, resp.ID)
	assert.Equal(t, models.StateOpen, resp.State)
}

func TestCreateReport_InvalidJSON(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)

	mockIncidents.EXPECT().CreateReport(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "POST", "/api/v1/reports", bytes.NewBufferString(`{"reporter_id": "x"`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestCreateReport_ValidationError(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	reqBody := CreateReportRequest{ // Отсутствует ImageURL
		ReporterID:  "reporter-42",
		Description: "No photo attached",
		Latitude:    55.7558,
		Longitude:   37.6173,
	}

	mockIncidents.EXPECT().CreateReport(gomock.Any(), gomock.Any()).Times(0)

	bodyBytes, _ := json.Marshal(reqBody)
	w := makeRequest(router, "POST", "/api/v1/reports", bytes.NewBuffer(bodyBytes))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateReport_Unauthorized(t *testing.T) {
	_, _, router := newTestHandler(t)

	req := httptest.NewRequest("POST", "/api/v1/reports", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetReport_Success(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	incidentID := uuid.New()

	mockIncidents.EXPECT().
		GetIncident(gomock.Any(), incidentID).
		Return(&models.Incident{ID: incidentID, State: models.StateOpen}, nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/reports/"+incidentID.String(), nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, incidentID, resp.ID)
}

func TestGetReport_NotFound(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	incidentID := uuid.New()

	mockIncidents.EXPECT().
		GetIncident(gomock.Any(), incidentID).
		Return(nil, fmt.Errorf("service: %w", models.ErrIncidentNotFound)).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/reports/"+incidentID.String(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "report not found")
}

func TestGetReport_InvalidID(t *testing.T) {
	_, _, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/reports/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNearbyReports_Success(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)

	mockIncidents.EXPECT().
		FindOpenNear(gomock.Any(), 55.7558, 37.6173, 5.0).
		Return([]*models.Incident{{ID: uuid.New(), State: models.StateOpen}}, nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/reports/nearby?lat=55.7558&lon=37.6173&radius_km=5", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp []*IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)
}

func TestNearbyReports_MissingCoordinates(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)

	mockIncidents.EXPECT().FindOpenNear(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/reports/nearby?lat=55.7558", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMyReports_Success(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)

	mockIncidents.EXPECT().
		ListReporterIncidents(gomock.Any(), "reporter-42").
		Return([]*models.Incident{{ID: uuid.New(), ReporterID: "reporter-42"}}, nil).
		Times(1)
	mockIncidents.EXPECT().
		LiveStatsFor(gomock.Any(), "reporter-42").
		Return(&models.ReporterStats{ResolvedCount: 2, TotalCount: 5, KarmaPoints: 100}, nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/reports/mine?reporter_id=reporter-42", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp MyReportsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Reports, 1)
	assert.Equal(t, 100, resp.Stats.KarmaPoints)
}

func TestMyReports_MissingReporterID(t *testing.T) {
	_, _, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/reports/mine", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClaimReport_Success(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	incidentID := uuid.New()

	mockIncidents.EXPECT().
		ClaimIncident(gomock.Any(), incidentID, "org-1").
		Return(&models.Incident{ID: incidentID, State: models.StateClaimed, ClaimantID: "org-1"}, nil).
		Times(1)

	body := bytes.NewBufferString(`{"organization_id": "org-1"}`)
	w := makeRequest(router, "POST", "/api/v1/reports/"+incidentID.String()+"/claim", body, operatorHeaders)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp IncidentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StateClaimed, resp.State)
	assert.Equal(t, "org-1", resp.ClaimantID)
}

func TestClaimReport_Conflict(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	incidentID := uuid.New()

	mockIncidents.EXPECT().
		ClaimIncident(gomock.Any(), incidentID, "org-2").
		Return(nil, fmt.Errorf("service: %w", models.ErrStateConflict)).
		Times(1)

	body := bytes.NewBufferString(`{"organization_id": "org-2"}`)
	w := makeRequest(router, "POST", "/api/v1/reports/"+incidentID.String()+"/claim", body, operatorHeaders)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already taken")
}

func TestClaimReport_NotFound(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	incidentID := uuid.New()

	mockIncidents.EXPECT().
		ClaimIncident(gomock.Any(), incidentID, "org-1").
		Return(nil, fmt.Errorf("service: %w", models.ErrIncidentNotFound)).
		Times(1)

	body := bytes.NewBufferString(`{"organization_id": "org-1"}`)
	w := makeRequest(router, "POST", "/api/v1/reports/"+incidentID.String()+"/claim", body, operatorHeaders)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClaimReport_ForbiddenForNonOperator(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)

	mockIncidents.EXPECT().ClaimIncident(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	body := bytes.NewBufferString(`{"organization_id": "org-1"}`)
	w := makeRequest(router, "POST", "/api/v1/reports/"+uuid.NewString()+"/claim", body,
		map[string]string{"X-Operator-Email": "stranger@example.com"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "operators only")
}

func TestResolveReport_Success(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	incidentID := uuid.New()

	mockIncidents.EXPECT().
		ResolveIncident(gomock.Any(), incidentID).
		Return(&models.Incident{ID: incidentID, State: models.StateResolved}, nil).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/reports/"+incidentID.String()+"/resolve", nil, operatorHeaders)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResolveReport_ConflictWhenNotClaimed(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	incidentID := uuid.New()

	mockIncidents.EXPECT().
		ResolveIncident(gomock.Any(), incidentID).
		Return(nil, fmt.Errorf("service: %w", models.ErrStateConflict)).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/reports/"+incidentID.String()+"/resolve", nil, operatorHeaders)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPlanRoute_Success(t *testing.T) {
	_, mockRoutes, router := newTestHandler(t)
	firstID := uuid.New()
	secondID := uuid.New()

	mockRoutes.EXPECT().
		PlanRoute(gomock.Any(), 55.75, 37.61, []uuid.UUID{firstID, secondID}).
		Return(&models.RoutePlan{
			OrderedIncidentIDs: []uuid.UUID{secondID, firstID},
			DistanceMeters:     12500,
			DurationSeconds:    1800,
		}, nil).
		Times(1)

	reqBody := PlanRouteRequest{
		Latitude:    55.75,
		Longitude:   37.61,
		IncidentIDs: []string{firstID.String(), secondID.String()},
	}
	bodyBytes, _ := json.Marshal(reqBody)
	w := makeRequest(router, "POST", "/api/v1/routes/plan", bytes.NewBuffer(bodyBytes), operatorHeaders)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp RoutePlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []uuid.UUID{secondID, firstID}, resp.OrderedIncidentIDs)
}

func TestPlanRoute_ZeroOriginAccepted(t *testing.T) {
	// Нулевые координаты валидны: экватор и нулевой меридиан
	_, mockRoutes, router := newTestHandler(t)
	firstID := uuid.New()
	secondID := uuid.New()

	mockRoutes.EXPECT().
		PlanRoute(gomock.Any(), 0.0, 0.0, []uuid.UUID{firstID, secondID}).
		Return(&models.RoutePlan{
			OrderedIncidentIDs: []uuid.UUID{firstID, secondID},
			DistanceMeters:     314000,
			DurationSeconds:    7200,
		}, nil).
		Times(1)

	reqBody := PlanRouteRequest{
		Latitude:    0,
		Longitude:   0,
		IncidentIDs: []string{firstID.String(), secondID.String()},
	}
	bodyBytes, _ := json.Marshal(reqBody)
	w := makeRequest(router, "POST", "/api/v1/routes/plan", bytes.NewBuffer(bodyBytes), operatorHeaders)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateReport_ZeroCoordinatesAccepted(t *testing.T) {
	mockIncidents, _, router := newTestHandler(t)
	reqBody := CreateReportRequest{
		ReporterID:  "reporter-42",
		ImageURL:    "https://example.com/photo.jpg",
		Description: "Report right on the equator",
		Latitude:    0,
		Longitude:   0,
	}

	mockIncidents.EXPECT().
		CreateReport(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			inc.ID = uuid.New()
			inc.State = models.StateOpen
			return nil
		}).Times(1)

	bodyBytes, _ := json.Marshal(reqBody)
	w := makeRequest(router, "POST", "/api/v1/reports", bytes.NewBuffer(bodyBytes))

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestPlanRoute_TooFewWaypoints(t *testing.T) {
	_, mockRoutes, router := newTestHandler(t)

	mockRoutes.EXPECT().PlanRoute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	reqBody := PlanRouteRequest{
		Latitude:    55.75,
		Longitude:   37.61,
		IncidentIDs: []string{uuid.NewString()},
	}
	bodyBytes, _ := json.Marshal(reqBody)
	w := makeRequest(router, "POST", "/api/v1/routes/plan", bytes.NewBuffer(bodyBytes), operatorHeaders)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlanRoute_RoutingFailure(t *testing.T) {
	_, mockRoutes, router := newTestHandler(t)
	firstID := uuid.New()
	secondID := uuid.New()

	mockRoutes.EXPECT().
		PlanRoute(gomock.Any(), 55.75, 37.61, []uuid.UUID{firstID, secondID}).
		Return(nil, fmt.Errorf("service: %w", models.ErrRoutingFailure)).
		Times(1)

	reqBody := PlanRouteRequest{
		Latitude:    55.75,
		Longitude:   37.61,
		IncidentIDs: []string{firstID.String(), secondID.String()},
	}
	bodyBytes, _ := json.Marshal(reqBody)
	w := makeRequest(router, "POST", "/api/v1/routes/plan", bytes.NewBuffer(bodyBytes), operatorHeaders)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "claims are unaffected")
}

func TestHealthCheck(t *testing.T) {
	_, _, router := newTestHandler(t)

	// Health без API-ключа
	req := httptest.NewRequest("GET", "/system/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/sirupsen/logrus"
)

// Waypoint - точка объезда, привязанная к инциденту
type Waypoint struct {
	IncidentID uuid.UUID
	Longitude  float64
	Latitude   float64
}

// tripResponse - ответ OSRM trip API. Waypoints идут в порядке входных
// координат, WaypointIndex - позиция точки в построенном объезде.
type tripResponse struct {
	Code  string `json:"code"`
	Trips []struct {
		Geometry models.RouteGeometry `json:"geometry"`
		Distance float64              `json:"distance"`
		Duration float64              `json:"duration"`
	} `json:"trips"`
	Waypoints []struct {
		WaypointIndex int `json:"waypoint_index"`
	} `json:"waypoints"`
}

// OSRMClient - клиент внешнего сервиса маршрутизации (OSRM trip API).
// Сервис трактуется как чёрный ящик: старт фиксирован в позиции организации,
// конечную точку среди инцидентов он выбирает сам (не кольцевой маршрут).
type OSRMClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewOSRMClient создает новый OSRMClient с ограниченным таймаутом
func NewOSRMClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *OSRMClient {
	return &OSRMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// routingErr помечает ошибку внешнего сервиса как ErrRoutingFailure
func routingErr(err error) error {
	return errors.Join(models.ErrRoutingFailure, err)
}

// Trip запрашивает у внешнего сервиса порядок объезда точек из позиции
// организации. Таймаут, не-2xx статус и не-Ok код ответа превращаются
// в ErrRoutingFailure, состояние заявок при этом не затрагивается.
func (c *OSRMClient) Trip(ctx context.Context, originLat, originLon float64, waypoints []Waypoint) (*models.RoutePlan, error) {
	// Координаты в формате lon,lat;lon,lat - долгота строго первой,
	// позиция организации строго первой парой
	coords := make([]string, 0, len(waypoints)+1)
	coords = append(coords, formatCoordinate(originLon, originLat))
	for _, wp := range waypoints {
		coords = append(coords, formatCoordinate(wp.Longitude, wp.Latitude))
	}

	url := fmt.Sprintf("%s/trip/v1/driving/%s?source=first&destination=any&roundtrip=false&geometries=geojson",
		c.baseURL, strings.Join(coords, ";"))

	c.logger.WithField("waypoints", len(waypoints)).Debug("Requesting trip from routing service")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, routingErr(fmt.Errorf("failed to create trip request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, routingErr(fmt.Errorf("trip request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, routingErr(fmt.Errorf("trip request returned status %d", resp.StatusCode))
	}

	var trip tripResponse
	if err := json.NewDecoder(resp.Body).Decode(&trip); err != nil {
		return nil, routingErr(fmt.Errorf("failed to decode trip response: %w", err))
	}

	if trip.Code != "Ok" || len(trip.Trips) == 0 {
		// Типичная причина - точка, недостижимая по дорожной сети
		return nil, routingErr(fmt.Errorf("trip response code %q", trip.Code))
	}
	if len(trip.Waypoints) != len(waypoints)+1 {
		return nil, routingErr(fmt.Errorf("trip response has %d waypoints, expected %d", len(trip.Waypoints), len(waypoints)+1))
	}

	// Восстанавливаем порядок объезда: waypoints[0] - позиция организации,
	// остальные сортируем по их позиции в объезде
	type visit struct {
		incidentID uuid.UUID
		order      int
	}
	visits := make([]visit, 0, len(waypoints))
	for i, wp := range waypoints {
		visits = append(visits, visit{
			incidentID: wp.IncidentID,
			order:      trip.Waypoints[i+1].WaypointIndex,
		})
	}
	ordered := make([]uuid.UUID, len(visits))
	for _, v := range visits {
		if v.order < 1 || v.order > len(visits) {
			return nil, routingErr(fmt.Errorf("trip response waypoint index %d out of range", v.order))
		}
		ordered[v.order-1] = v.incidentID
	}

	return &models.RoutePlan{
		OrderedIncidentIDs: ordered,
		Geometry:           trip.Trips[0].Geometry,
		DistanceMeters:     trip.Trips[0].Distance,
		DurationSeconds:    trip.Trips[0].Duration,
	}, nil
}

func formatCoordinate(lon, lat float64) string {
	return strconv.FormatFloat(lon, 'f', -1, 64) + "," + strconv.FormatFloat(lat, 'f', -1, 64)
}

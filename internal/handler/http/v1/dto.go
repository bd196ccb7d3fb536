package v1

import (
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

// CreateReportRequest DTO для создания заявки на спасение
// @Description DTO для создания заявки на спасение
type CreateReportRequest struct {
	ReporterID    string  `json:"reporter_id" validate:"required"`
	ReporterPhone string  `json:"reporter_phone,omitempty"`
	ImageURL      string  `json:"image_url" validate:"required,url"`
	Description   string  `json:"description" validate:"required"`
	Latitude      float64 `json:"latitude" validate:"latitude"`
	Longitude     float64 `json:"longitude" validate:"longitude"`
}

// ClaimReportRequest DTO для принятия заявки организацией
// @Description DTO для принятия заявки организацией
type ClaimReportRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
}

// PlanRouteRequest DTO для построения пакетного маршрута
// @Description DTO для построения пакетного маршрута
type PlanRouteRequest struct {
	Latitude    float64  `json:"latitude" validate:"latitude"`
	Longitude   float64  `json:"longitude" validate:"longitude"`
	IncidentIDs []string `json:"incident_ids" validate:"required,min=2,dive,uuid"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID            uuid.UUID    `json:"id"`
	ReporterID    string       `json:"reporter_id"`
	ReporterTrust int          `json:"reporter_trust"`
	ImageURL      string       `json:"image_url"`
	Description   string       `json:"description"`
	Latitude      float64      `json:"latitude"`
	Longitude     float64      `json:"longitude"`
	State         models.State `json:"state"`
	ClaimantID    string       `json:"claimant_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ReporterStatsResponse DTO для живой статистики репортёра
// @Description DTO для живой статистики репортёра
type ReporterStatsResponse struct {
	ResolvedCount int `json:"resolved_count"`
	TotalCount    int `json:"total_count"`
	KarmaPoints   int `json:"karma_points"`
}

// MyReportsResponse DTO для ответа со списком заявок и статистикой репортёра
// @Description DTO для ответа со списком заявок и статистикой репортёра
type MyReportsResponse struct {
	Reports []*IncidentResponse   `json:"reports"`
	Stats   ReporterStatsResponse `json:"stats"`
}

// RoutePlanResponse DTO для ответа с построенным маршрутом
// @Description DTO для ответа с построенным маршрутом
type RoutePlanResponse struct {
	OrderedIncidentIDs []uuid.UUID          `json:"ordered_incident_ids"`
	Geometry           models.RouteGeometry `json:"geometry"`
	DistanceMeters     float64              `json:"distance_meters"`
	DurationSeconds    float64              `json:"duration_seconds"`
}

package models

import "github.com/google/uuid"

// RouteGeometry - геометрия пути в формате GeoJSON LineString,
// как её возвращает внешний сервис маршрутизации.
type RouteGeometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
}

// RoutePlan - порядок объезда выбранных инцидентов плюс геометрия пути.
// Считается по запросу от фиксированного снимка позиций и нигде не хранится.
type RoutePlan struct {
	OrderedIncidentIDs []uuid.UUID   `json:"ordered_incident_ids"`
	Geometry           RouteGeometry `json:"geometry"`
	DistanceMeters     float64       `json:"distance_meters"`
	DurationSeconds    float64       `json:"duration_seconds"`
}

// ReporterStats - живая статистика репортёра, пересчитывается при каждом
// запросе и не хранится в виде счётчиков.
type ReporterStats struct {
	ResolvedCount int `json:"resolved_count"`
	TotalCount    int `json:"total_count"`
	KarmaPoints   int `json:"karma_points"`
}

package v1

import "github.com/shenikar/rescue_dispatch_system/internal/models"

// DTOToIncidentModel преобразует DTO создания заявки в доменную модель.
// Состояние и trust-снимок выставляет сервис, не хендлер.
func DTOToIncidentModel(dto CreateReportRequest) *models.Incident {
	return &models.Incident{
		ReporterID:    dto.ReporterID,
		ReporterPhone: dto.ReporterPhone,
		ImageURL:      dto.ImageURL,
		Description:   dto.Description,
		Latitude:      dto.Latitude,
		Longitude:     dto.Longitude,
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	return &IncidentResponse{
		ID:            model.ID,
		ReporterID:    model.ReporterID,
		ReporterTrust: model.ReporterTrust,
		ImageURL:      model.ImageURL,
		Description:   model.Description,
		Latitude:      model.Latitude,
		Longitude:     model.Longitude,
		State:         model.State,
		ClaimantID:    model.ClaimantID,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(models []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

// ModelToRoutePlanResponse преобразует план маршрута в DTO для ответа
func ModelToRoutePlanResponse(plan *models.RoutePlan) *RoutePlanResponse {
	return &RoutePlanResponse{
		OrderedIncidentIDs: plan.OrderedIncidentIDs,
		Geometry:           plan.Geometry,
		DistanceMeters:     plan.DistanceMeters,
		DurationSeconds:    plan.DurationSeconds,
	}
}

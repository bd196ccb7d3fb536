package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/shenikar/rescue_dispatch_system/internal/service"
)

// incidentColumns - общий набор колонок для чтения инцидента.
// Порядок координат в хранилище: долгота первой (ST_MakePoint(lon, lat)).
const incidentColumns = `
	id,
	reporter_id,
	COALESCE(reporter_phone, '') AS reporter_phone,
	reporter_trust,
	image_url,
	description,
	ST_X(location::geometry) AS longitude,
	ST_Y(location::geometry) AS latitude,
	state,
	COALESCE(claimant_id, '') AS claimant_id,
	created_at,
	updated_at`

type IncidentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
}

func NewIncidentRepository(db *pgxpool.Pool, redisClient *redis.Client) service.IncidentRepository {
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
	}
}

// storeErr помечает инфраструктурную ошибку хранилища как ErrStoreUnavailable,
// сохраняя исходную причину для логов
func storeErr(err error) error {
	return errors.Join(models.ErrStoreUnavailable, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	incident := &models.Incident{}
	err := row.Scan(
		&incident.ID,
		&incident.ReporterID,
		&incident.ReporterPhone,
		&incident.ReporterTrust,
		&incident.ImageURL,
		&incident.Description,
		&incident.Longitude,
		&incident.Latitude,
		&incident.State,
		&incident.ClaimantID,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return incident, nil
}

// Create создает новую запись об инциденте в бд
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (reporter_id, reporter_phone, reporter_trust, image_url, description, location, state)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326), $8)
		RETURNING id, created_at, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		incident.ReporterID,
		incident.ReporterPhone,
		incident.ReporterTrust,
		incident.ImageURL,
		incident.Description,
		incident.Longitude,
		incident.Latitude,
		incident.State,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", storeErr(err))
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1;`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident %s: %w", id, models.ErrIncidentNotFound)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", storeErr(err))
	}
	return incident, nil
}

// ConditionalTransition выполняет атомарный переход состояния: UPDATE
// срабатывает только если текущее состояние равно ожидаемому. Это единственный
// арбитр гонки за claim - корректен для любого числа конкурентных вызовов
// и инстансов сервиса, потому что сравнение и запись происходят одним
// оператором на стороне бд. claimantID записывается только при непустом
// значении (однократно, на переходе open -> claimed).
func (r *IncidentRepository) ConditionalTransition(ctx context.Context, id uuid.UUID, expected, next models.State, claimantID string) (*models.Incident, error) {
	query := `
		UPDATE incidents SET
			state = $3,
			claimant_id = CASE WHEN $4 <> '' THEN $4 ELSE claimant_id END,
			updated_at = NOW()
		WHERE id = $1 AND state = $2
		RETURNING ` + incidentColumns + `;
	`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id, expected, next, claimantID))
	if err == nil {
		return incident, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to transition incident: %w", storeErr(err))
	}

	// Гонка уже проиграна, осталось только назвать причину:
	// инцидента нет вовсе или он не в ожидаемом состоянии
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM incidents WHERE id = $1);`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check incident existence: %w", storeErr(err))
	}
	if !exists {
		return nil, fmt.Errorf("incident %s: %w", id, models.ErrIncidentNotFound)
	}
	return nil, fmt.Errorf("incident %s is not in state %q: %w", id, expected, models.ErrStateConflict)
}

// UnconditionalTransition выполняет переход без проверки состояния.
// Используется только для claimed -> resolved, где по построению
// конкурирующих претендентов уже нет.
func (r *IncidentRepository) UnconditionalTransition(ctx context.Context, id uuid.UUID, next models.State) (*models.Incident, error) {
	query := `
		UPDATE incidents SET
			state = $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + incidentColumns + `;
	`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id, next))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident %s: %w", id, models.ErrIncidentNotFound)
		}
		return nil, fmt.Errorf("failed to transition incident: %w", storeErr(err))
	}
	return incident, nil
}

// FindNearByState находит инциденты в заданном состоянии в радиусе
// от точки, ближайшие первыми. Каждый вызов - свежий запрос к бд.
func (r *IncidentRepository) FindNearByState(ctx context.Context, lat, lon, radiusMeters float64, state models.State) ([]*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE
			state = $1
			AND ST_DWithin(
				location,
				ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography,
				$4
			)
		ORDER BY ST_Distance(location, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography);
	`
	rows, err := r.db.Query(ctx, query, state, lon, lat, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to find incidents by location: %w", storeErr(err))
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row in FindNearByState: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration in FindNearByState: %w", storeErr(err))
	}
	return incidents, nil
}

// CountByReporterAndState возвращает число инцидентов репортёра в состоянии
func (r *IncidentRepository) CountByReporterAndState(ctx context.Context, reporterID string, state models.State) (int, error) {
	query := `SELECT COUNT(*) FROM incidents WHERE reporter_id = $1 AND state = $2;`
	var count int
	if err := r.db.QueryRow(ctx, query, reporterID, state).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count incidents by reporter and state: %w", storeErr(err))
	}
	return count, nil
}

// CountByReporter возвращает общее число инцидентов репортёра
func (r *IncidentRepository) CountByReporter(ctx context.Context, reporterID string) (int, error) {
	query := `SELECT COUNT(*) FROM incidents WHERE reporter_id = $1;`
	var count int
	if err := r.db.QueryRow(ctx, query, reporterID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count incidents by reporter: %w", storeErr(err))
	}
	return count, nil
}

// ListByReporter возвращает инциденты репортёра, новые первыми
func (r *IncidentRepository) ListByReporter(ctx context.Context, reporterID string) ([]*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE reporter_id = $1
		ORDER BY created_at DESC;
	`
	rows, err := r.db.Query(ctx, query, reporterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents by reporter: %w", storeErr(err))
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row in ListByReporter: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration in ListByReporter: %w", storeErr(err))
	}
	return incidents, nil
}

// ListIncidents возвращает список инцидентов с пагинацией
func (r *IncidentRepository) ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error) {
	// рассчитываем смещение
	offset := (page - 1) * pageSize

	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := r.db.Query(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", storeErr(err))
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", storeErr(err))
	}
	return incidents, nil
}

// GetIncidentFromCache пытается получить инцидент из Redis
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	key := fmt.Sprintf("incident:%s", id.String())
	val, err := r.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, nil
}

// SetIncidentCache сохраняет инцидент в Redis
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident) error {
	key := fmt.Sprintf("incident:%s", incident.ID.String())
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	// Устанавливаем срок жизни кэша, например, 5 минут
	if err := r.redisClient.Set(ctx, key, val, 5*time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет инцидент из Redis кэша
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error {
	key := fmt.Sprintf("incident:%s", id.String())
	if err := r.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}

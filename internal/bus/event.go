package bus

import (
	"context"
	"time"

	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

// EventType - тип события жизненного цикла инцидента
type EventType string

const (
	EventCreated  EventType = "created"
	EventClaimed  EventType = "claimed"
	EventResolved EventType = "resolved"
)

// Event - событие шины, несёт полный снимок инцидента на момент перехода
type Event struct {
	Type      EventType        `json:"type"`
	Incident  *models.Incident `json:"incident"`
	Timestamp time.Time        `json:"timestamp"`
}

// Publisher - интерфейс для публикации событий жизненного цикла.
// Доставка best-effort: ошибка публикации не должна откатывать переход.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

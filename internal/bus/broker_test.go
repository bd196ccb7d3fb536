package bus

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker() *Broker {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewBroker(logger)
}

func testEvent(eventType EventType) Event {
	return Event{
		Type: eventType,
		Incident: &models.Incident{
			ID:    uuid.New(),
			State: models.StateOpen,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestBroker_DeliversToAllSubscribers(t *testing.T) {
	// Подготовка
	broker := newTestBroker()
	first := broker.Subscribe()
	second := broker.Subscribe()
	event := testEvent(EventCreated)

	// Действие
	broker.Dispatch(event)

	// Проверки: каждый подписчик получает событие ровно один раз
	require.Len(t, first.C, 1)
	require.Len(t, second.C, 1)
	assert.Equal(t, event.Incident.ID, (<-first.C).Incident.ID)
	assert.Equal(t, event.Incident.ID, (<-second.C).Incident.ID)
}

func TestBroker_UnsubscribedReceivesNothing(t *testing.T) {
	// Подготовка
	broker := newTestBroker()
	sub := broker.Subscribe()
	broker.Unsubscribe(sub)

	// Действие
	broker.Dispatch(testEvent(EventClaimed))

	// Проверки: канал закрыт и пуст
	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestBroker_UnsubscribeTwiceIsSafe(t *testing.T) {
	// Подготовка
	broker := newTestBroker()
	sub := broker.Subscribe()

	// Действие: повторный Unsubscribe не должен паниковать
	broker.Unsubscribe(sub)
	broker.Unsubscribe(sub)

	// Проверки
	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestBroker_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	// Подготовка
	broker := newTestBroker()
	slow := broker.Subscribe()
	fast := broker.Subscribe()

	// Действие: заливаем больше событий, чем вмещает буфер
	total := defaultSubscriberBuffer + 5
	done := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			broker.Dispatch(testEvent(EventCreated))
		}
		close(done)
	}()

	// Проверки: публикация не блокируется на переполненном подписчике
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a slow subscriber")
	}
	assert.Len(t, slow.C, defaultSubscriberBuffer)
	assert.Len(t, fast.C, defaultSubscriberBuffer)
}

func TestBroker_PerSubscriberOrderingPreserved(t *testing.T) {
	// Подготовка
	broker := newTestBroker()
	sub := broker.Subscribe()
	created := testEvent(EventCreated)
	claimed := Event{Type: EventClaimed, Incident: created.Incident, Timestamp: time.Now().UTC()}
	resolved := Event{Type: EventResolved, Incident: created.Incident, Timestamp: time.Now().UTC()}

	// Действие: раздача из одной горутины, как это делает Relay
	broker.Dispatch(created)
	broker.Dispatch(claimed)
	broker.Dispatch(resolved)

	// Проверки
	assert.Equal(t, EventCreated, (<-sub.C).Type)
	assert.Equal(t, EventClaimed, (<-sub.C).Type)
	assert.Equal(t, EventResolved, (<-sub.C).Type)
}

package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// defaultSubscriberBuffer - размер буфера канала подписчика. Медленный
// подписчик при переполнении теряет события, а не тормозит публикацию.
const defaultSubscriberBuffer = 16

// Subscription - живая подписка на поток событий. Существует только
// пока соединение подписчика живо; после Unsubscribe канал закрывается.
type Subscription struct {
	C chan Event
}

// Broker - внутрипроцессный fan-out событий по живым подписчикам
// (SSE-сессии дашбордов и граждан, телефонный мост).
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	logger *logrus.Logger
}

// NewBroker создает новый Broker
func NewBroker(logger *logrus.Logger) *Broker {
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe регистрирует нового подписчика
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{C: make(chan Event, defaultSubscriberBuffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe снимает подписку и закрывает её канал
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	if ok {
		delete(b.subs, sub)
	}
	b.mu.Unlock()
	if ok {
		close(sub.C)
	}
}

// Dispatch раздает событие всем текущим подписчикам. Отправка неблокирующая:
// переполненный подписчик теряет событие, это логируется и не мешает остальным.
// Порядок для каждого подписчика сохраняется, пока Dispatch вызывается из
// одной горутины (см. Relay).
func (b *Broker) Dispatch(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.C <- event:
		default:
			b.logger.WithFields(logrus.Fields{
				"event_type":  event.Type,
				"incident_id": event.Incident.ID,
			}).Warn("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount возвращает число живых подписчиков
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Relay - мост между каналом Redis Pub/Sub и внутрипроцессным брокером.
// Одна горутина читает подписку и вызывает Dispatch, сохраняя порядок
// событий для каждого подписчика.
type Relay struct {
	redisClient *redis.Client
	channel     string
	broker      *Broker
	logger      *logrus.Logger
}

// NewRelay создает новый Relay
func NewRelay(client *redis.Client, channel string, broker *Broker, logger *logrus.Logger) *Relay {
	return &Relay{
		redisClient: client,
		channel:     channel,
		broker:      broker,
		logger:      logger,
	}
}

// Start запускает горутину, транслирующую события из Redis в брокер
func (r *Relay) Start(ctx context.Context) {
	r.logger.Info("Starting event relay...")
	pubsub := r.redisClient.Subscribe(ctx, r.channel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Stopping event relay.")
				return
			case msg, ok := <-ch:
				if !ok {
					r.logger.Warn("Redis pubsub channel closed, stopping event relay")
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.logger.WithError(err).Error("Failed to unmarshal incident event from Redis")
					continue
				}
				if event.Incident == nil {
					r.logger.Warn("Incident event without payload, skipping")
					continue
				}
				r.broker.Dispatch(event)
			}
		}
	}()
}

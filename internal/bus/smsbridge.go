package bus

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/sirupsen/logrus"
)

// OutboundMessage - полезная нагрузка для шлюза телефонных сообщений
type OutboundMessage struct {
	Phone      string    `json:"phone"`
	Body       string    `json:"body"`
	IncidentID string    `json:"incident_id"`
	Event      EventType `json:"event"`
	Timestamp  time.Time `json:"timestamp"`
}

// SMSBridge - подписчик шины, который на события claimed/resolved по заявкам
// с телефонным происхождением отправляет исходящее сообщение репортёру через
// внешний шлюз. Ошибки доставки логируются и не влияют на переходы состояний.
type SMSBridge struct {
	broker     *Broker
	logger     *logrus.Logger
	cfg        *config.Config
	httpClient *http.Client
}

// NewSMSBridge создает новый SMSBridge
func NewSMSBridge(broker *Broker, logger *logrus.Logger, cfg *config.Config) *SMSBridge {
	return &SMSBridge{
		broker: broker,
		logger: logger,
		cfg:    cfg,
		httpClient: &http.Client{
			Timeout: cfg.SMSTimeout,
		},
	}
}

// Start подписывается на брокер и запускает горутину обработки событий
func (b *SMSBridge) Start(ctx context.Context) {
	b.logger.Info("Starting SMS bridge...")
	sub := b.broker.Subscribe()
	go func() {
		defer b.broker.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				b.logger.Info("Stopping SMS bridge.")
				return
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				b.processEvent(ctx, event)
			}
		}
	}()
}

func (b *SMSBridge) processEvent(ctx context.Context, event Event) {
	// Уведомляем только репортёров с телефонным происхождением
	// и только о переходах, созданное ими событие created им не нужно
	if !event.Incident.PhoneOrigin() {
		return
	}
	if event.Type != EventClaimed && event.Type != EventResolved {
		return
	}

	log := b.logger.WithFields(logrus.Fields{
		"incident_id": event.Incident.ID,
		"event_type":  event.Type,
	})

	if b.cfg.SMSGatewayURL == "" {
		log.Warn("SMS gateway URL is not configured. Skipping outbound message.")
		return
	}

	msg := OutboundMessage{
		Phone:      event.Incident.ReporterPhone,
		Body:       formatStatusMessage(event),
		IncidentID: event.Incident.ID.String(),
		Event:      event.Type,
		Timestamp:  event.Timestamp,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("Failed to marshal outbound message")
		return
	}

	b.deliver(ctx, log, payload)
}

// deliver отправляет сообщение шлюзу с повторами и экспоненциальной задержкой
func (b *SMSBridge) deliver(ctx context.Context, log *logrus.Entry, payload []byte) {
	maxRetries := b.cfg.SMSMaxRetries
	baseDelay := b.cfg.SMSBaseDelay

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.SMSGatewayURL, bytes.NewReader(payload))
		if err != nil {
			log.WithError(err).Errorf("Failed to create SMS gateway request. Retrying in %v. Retries left: %d", baseDelay, maxRetries-1-i)
			if !b.waitForRetry(ctx, baseDelay) {
				log.Info("Outbound message delivery cancelled.")
				return
			}
			baseDelay *= 2 // Экспоненциальная задержка
			continue
		}

		req.Header.Set("Content-Type", "application/json")

		// Добавляем HMAC подпись, если SMS_GATEWAY_SECRET задан
		if b.cfg.SMSSecret != "" {
			signature := generateHMACSHA256(string(payload), b.cfg.SMSSecret)
			req.Header.Set("X-Bridge-Signature", signature)
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			log.WithError(err).Warnf("Failed to send outbound message. Retrying in %v. Retries left: %d", baseDelay, maxRetries-1-i)
			if !b.waitForRetry(ctx, baseDelay) {
				log.Info("Outbound message delivery cancelled.")
				return
			}
			baseDelay *= 2 // Экспоненциальная задержка
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.Info("Outbound message delivered successfully.")
			return
		}
		log.Warnf("Outbound message delivery failed with status code %d. Retrying in %v. Retries left: %d", resp.StatusCode, baseDelay, maxRetries-1-i)
		if !b.waitForRetry(ctx, baseDelay) {
			log.Info("Outbound message delivery cancelled.")
			return
		}
		baseDelay *= 2 // Экспоненциальная задержка
	}

	log.Errorf("Failed to deliver outbound message after %d retries.", maxRetries)
}

// waitForRetry выдерживает паузу перед повтором, прерываясь при отмене контекста
func (b *SMSBridge) waitForRetry(ctx context.Context, delay time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// formatStatusMessage собирает текст уведомления со ссылкой на карту
func formatStatusMessage(event Event) string {
	mapsLink := fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%f,%f",
		event.Incident.Latitude, event.Incident.Longitude)

	switch event.Type {
	case EventClaimed:
		return fmt.Sprintf("Rescue update: an organization has accepted your report and a team is on the way to %s", mapsLink)
	case EventResolved:
		return fmt.Sprintf("Rescue successful: your report at %s has been resolved. Thank you for reporting.", mapsLink)
	}
	return ""
}

// generateHMACSHA256 генерирует HMAC-SHA256 подпись для данных
func generateHMACSHA256(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

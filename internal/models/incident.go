package models

import (
	"time"

	"github.com/google/uuid"
)

// State - состояние жизненного цикла инцидента
type State string

const (
	StateOpen     State = "open"
	StateClaimed  State = "claimed"
	StateResolved State = "resolved"
)

// IsValid проверяет, что значение состояния известно системе
func (s State) IsValid() bool {
	switch s {
	case StateOpen, StateClaimed, StateResolved:
		return true
	}
	return false
}

// CanTransitionTo проверяет допустимость перехода. Разрешены только
// open -> claimed и claimed -> resolved.
func (s State) CanTransitionTo(next State) bool {
	switch {
	case s == StateOpen && next == StateClaimed:
		return true
	case s == StateClaimed && next == StateResolved:
		return true
	}
	return false
}

// Incident - заявка на спасение с геопривязкой
type Incident struct {
	ID            uuid.UUID `json:"id"`
	ReporterID    string    `json:"reporter_id"`
	ReporterPhone string    `json:"reporter_phone,omitempty"`
	// ReporterTrust - снимок числа закрытых заявок репортёра на момент
	// создания. Не пересчитывается задним числом.
	ReporterTrust int       `json:"reporter_trust"`
	ImageURL      string    `json:"image_url"`
	Description   string    `json:"description"`
	Longitude     float64   `json:"longitude"`
	Latitude      float64   `json:"latitude"`
	State         State     `json:"state"`
	ClaimantID    string    `json:"claimant_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PhoneOrigin сообщает, что заявка пришла через телефонный мост
// и репортёра нужно уведомлять исходящим сообщением.
func (i *Incident) PhoneOrigin() bool {
	return i.ReporterPhone != ""
}

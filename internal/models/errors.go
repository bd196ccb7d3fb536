package models

import "errors"

// Ошибки доменного уровня. Слои выше сопоставляют их через errors.Is,
// чтобы выбрать HTTP-статус и тон сообщения.
var (
	// ErrIncidentNotFound - инцидент с таким id не существует
	ErrIncidentNotFound = errors.New("incident not found")
	// ErrStateConflict - предусловие перехода не выполнено: кто-то успел
	// раньше или инцидент не в ожидаемом состоянии. Штатный исход гонки.
	ErrStateConflict = errors.New("incident state conflict")
	// ErrStoreUnavailable - хранилище недоступно, вызывающий может повторить
	ErrStoreUnavailable = errors.New("incident store unavailable")
	// ErrRoutingFailure - внешний сервис маршрутизации не ответил или
	// вернул ошибку; заявки при этом остаются валидными
	ErrRoutingFailure = errors.New("routing service failure")
	// ErrNotEnoughWaypoints - для построения маршрута нужно минимум две точки
	ErrNotEnoughWaypoints = errors.New("route requires at least two waypoints")
)

package websocket

import (
	"time"

	"riskcore/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeRiskEvent - новое риск-событие
	// Отправляется при каждом событии: просадка, breach, kill switch,
	// circuit breaker, расхождение сверки
	MessageTypeRiskEvent MessageType = "riskEvent"

	// MessageTypeBreachUpdate - позиция помечена как breach лимита
	MessageTypeBreachUpdate MessageType = "breachUpdate"

	// MessageTypeKillSwitch - изменение состояния kill switch тенанта
	MessageTypeKillSwitch MessageType = "killSwitchUpdate"

	// MessageTypePositionUpdate - обновление позиции после исполнения
	MessageTypePositionUpdate MessageType = "positionUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// RiskEventMessage - сообщение с риск-событием
type RiskEventMessage struct {
	BaseMessage
	Data *models.RiskEvent `json:"data"`
}

// BreachUpdateMessage - сообщение о breach'е лимита
type BreachUpdateMessage struct {
	BaseMessage
	Data *models.FlaggedPosition `json:"data"`
}

// KillSwitchMessage - сообщение об изменении kill switch
type KillSwitchMessage struct {
	BaseMessage
	TenantID string                  `json:"tenant_id"`
	Data     *models.KillSwitchState `json:"data"`
}

// PositionUpdateMessage - сообщение об обновлении позиции
type PositionUpdateMessage struct {
	BaseMessage
	Data *models.Position `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewRiskEventMessage создает сообщение риск-события
func NewRiskEventMessage(event models.RiskEvent) *RiskEventMessage {
	return &RiskEventMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeRiskEvent,
			Timestamp: time.Now().UTC(),
		},
		Data: &event,
	}
}

// NewBreachUpdateMessage создает сообщение о breach'е
func NewBreachUpdateMessage(fp *models.FlaggedPosition) *BreachUpdateMessage {
	return &BreachUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBreachUpdate,
			Timestamp: time.Now().UTC(),
		},
		Data: fp,
	}
}

// NewKillSwitchMessage создает сообщение о kill switch
func NewKillSwitchMessage(tenantID string, state *models.KillSwitchState) *KillSwitchMessage {
	return &KillSwitchMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeKillSwitch,
			Timestamp: time.Now().UTC(),
		},
		TenantID: tenantID,
		Data:     state,
	}
}

// NewPositionUpdateMessage создает сообщение об обновлении позиции
func NewPositionUpdateMessage(position *models.Position) *PositionUpdateMessage {
	return &PositionUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionUpdate,
			Timestamp: time.Now().UTC(),
		},
		Data: position,
	}
}

package websocket

import (
	"bytes"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"riskcore/internal/models"
	"riskcore/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON буферов: убирает аллокации при каждом Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями.
//
// Центральный менеджер broadcast'а риск-событий подключенным
// клиентам (дашборды, алертинг). Ядро пишет события через
// EventCallback, hub рассылает их без блокировки продюсера:
// медленные клиенты отсоединяются, а не тормозят рассылку.
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	mu     sync.RWMutex
	logger *utils.Logger
}

// NewHub создает новый Hub
func NewHub(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.L()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.WithComponent("ws_hub"),
	}
}

// Run запускает главный цикл Hub.
//
// Должен запускаться в отдельной горутине: go hub.Run().
// Рассылка идет по копии списка клиентов без удержания lock'а,
// чтобы register/unregister не ждали медленных отправок.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client connected", utils.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client disconnected", utils.Int("total_clients", total))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает обрабатывать сообщения
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Warn("Removed slow clients",
					utils.Int("removed", len(toRemove)),
					utils.Int("total_clients", total),
				)
			}
		}
	}
}

// Broadcast отправляет сообщение всем подключенным клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("Error marshaling broadcast message", utils.Err(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копируем данные: буфер вернётся в пул
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

// BroadcastRiskEvent отправляет риск-событие всем клиентам.
//
// Сигнатура совпадает с risk.RiskEventCallback: hub подключается
// к ядру напрямую как callback доставки событий.
func (h *Hub) BroadcastRiskEvent(event models.RiskEvent) {
	h.Broadcast(NewRiskEventMessage(event))
}

// BroadcastBreachUpdate отправляет помеченную позицию
func (h *Hub) BroadcastBreachUpdate(fp *models.FlaggedPosition) {
	h.Broadcast(NewBreachUpdateMessage(fp))
}

// BroadcastKillSwitch отправляет изменение состояния kill switch
func (h *Hub) BroadcastKillSwitch(tenantID string, state *models.KillSwitchState) {
	h.Broadcast(NewKillSwitchMessage(tenantID, state))
}

// BroadcastPositionUpdate отправляет обновление позиции
func (h *Hub) BroadcastPositionUpdate(position *models.Position) {
	h.Broadcast(NewPositionUpdateMessage(position))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

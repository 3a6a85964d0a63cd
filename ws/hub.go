package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"shiftoffer_backend/internal/cache"
	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/internal/services"
)

const presenceTimeout = 5 * time.Second

type clientSet map[*Client]struct{}

// Hub держит websocket-клиентов этого процесса, сгруппированных по
// пользователю и отделу. Сообщения приходят через redis pub/sub, так что
// доставка работает при нескольких экземплярах сервиса.
type Hub struct {
	users       map[string]clientSet
	departments map[string]clientSet
	mu          sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	broadcaster *cache.Broadcaster
	presence    services.PresenceService
	logger      *zap.Logger
}

func NewHub(broadcaster *cache.Broadcaster, presence services.PresenceService, logger *zap.Logger) *Hub {
	return &Hub{
		users:       make(map[string]clientSet),
		departments: make(map[string]clientSet),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		broadcaster: broadcaster,
		presence:    presence,
		logger:      logger.Named("ws_hub"),
	}
}

// Run обслуживает регистрацию клиентов и redis-подписку до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	pubsub := h.broadcaster.Subscribe(ctx)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Error("realtime subscription failed", zap.Error(err))
		return
	}
	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.add(client)
			go h.onConnect(client)

		case client := <-h.unregister:
			if h.remove(client) {
				go h.onDisconnect(client.UserID)
			}

		case msg, ok := <-messages:
			if !ok {
				h.logger.Warn("realtime subscription closed")
				h.closeAll()
				return
			}
			scope, id, ok := h.broadcaster.Route(msg.Channel)
			if !ok {
				continue
			}
			h.deliver(scope, id, []byte(msg.Payload))
		}
	}
}

// Register блокируется, пока Run не примет клиента. false - хаб остановлен.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// IsConnected - есть ли у пользователя соединение с этим процессом
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.users {
		n += len(set)
	}
	return n
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[c.UserID]
	if !ok {
		set = make(clientSet)
		h.users[c.UserID] = set
	}
	set[c] = struct{}{}

	if c.DepartmentID != "" {
		dept, ok := h.departments[c.DepartmentID]
		if !ok {
			dept = make(clientSet)
			h.departments[c.DepartmentID] = dept
		}
		dept[c] = struct{}{}
	}

	h.logger.Debug("client registered", zap.String("user_id", c.UserID), zap.Int("connections", len(set)))
}

func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[c.UserID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}

	delete(set, c)
	if len(set) == 0 {
		delete(h.users, c.UserID)
	}
	if dept, ok := h.departments[c.DepartmentID]; ok {
		delete(dept, c)
		if len(dept) == 0 {
			delete(h.departments, c.DepartmentID)
		}
	}
	close(c.send)

	h.logger.Debug("client unregistered", zap.String("user_id", c.UserID))
	return true
}

func (h *Hub) deliver(scope, id string, payload []byte) {
	h.mu.RLock()
	var set clientSet
	switch scope {
	case "user":
		set = h.users[id]
	case "dept":
		set = h.departments[id]
	}
	var slow []*Client
	for c := range set {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// Переполненный буфер - клиент не успевает читать, отключаем
	for _, c := range slow {
		h.logger.Warn("client send buffer full, disconnecting", zap.String("user_id", c.UserID))
		if h.remove(c) {
			go h.onDisconnect(c.UserID)
		}
	}
}

// onConnect учитывает соединение в общем счетчике и досылает in-app
// сообщения, накопленные офлайн
func (h *Hub) onConnect(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	if err := h.presence.Connect(ctx, c.UserID); err != nil {
		h.logger.Warn("presence connect failed", zap.String("user_id", c.UserID), zap.Error(err))
	}

	pending, err := h.presence.ReplayPending(ctx, c.UserID)
	if err != nil {
		h.logger.Warn("pending replay failed", zap.String("user_id", c.UserID), zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}
	select {
	case c.replay <- pending:
	case <-c.done:
		h.logger.Warn("pending replay interrupted", zap.String("user_id", c.UserID), zap.Int("left", len(pending)))
	case <-time.After(writeWait):
		h.logger.Warn("pending replay timed out", zap.String("user_id", c.UserID), zap.Int("left", len(pending)))
	}
}

// onDisconnect: offline пишется только когда у пользователя не осталось
// соединений ни на одном экземпляре
func (h *Hub) onDisconnect(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.Disconnect(ctx, userID); err != nil {
		h.logger.Warn("presence disconnect failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// choosePresence - статус, выбранный пользователем через action "presence"
func (h *Hub) choosePresence(userID string, status models.PresenceStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.ChooseStatus(ctx, userID, status); err != nil {
		h.logger.Warn("presence update failed",
			zap.String("user_id", userID), zap.String("status", string(status)), zap.Error(err))
	}
}

func (h *Hub) heartbeat(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.Heartbeat(ctx, userID); err != nil {
		h.logger.Debug("presence heartbeat failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	var users []string
	for userID, set := range h.users {
		for c := range set {
			close(c.send)
			users = append(users, userID)
		}
		delete(h.users, userID)
	}
	h.departments = make(map[string]clientSet)
	h.mu.Unlock()

	for _, userID := range users {
		h.onDisconnect(userID)
	}
}

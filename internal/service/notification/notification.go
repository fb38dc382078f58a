package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/metrics"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
)

const (
	EventNew = "notification:new"

	defaultListLimit = 50
)

// Channel returns the pub/sub channel user clients subscribe to
func Channel(userID uuid.UUID) string {
	return userID.String() + "-notifications"
}

type Event struct {
	Event string  `json:"event"`
	Data  Payload `json:"data"`
}

type Payload struct {
	ID        uuid.UUID               `json:"id"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	IsRead    bool                    `json:"isRead"`
	CreatedAt time.Time               `json:"createdAt"`
}

type Service struct {
	storage   repository.Storage
	publisher Publisher
	logger    logger.Logger
}

func NewService(storage repository.Storage, publisher Publisher, l logger.Logger) *Service {
	if publisher == nil {
		publisher = NoOpPublisher{}
	}
	return &Service{storage: storage, publisher: publisher, logger: l}
}

// Emit stores the notification and pushes it to the user channel
// Publish failures are logged only, the stored notification is the source of truth
func (s *Service) Emit(ctx context.Context, userID uuid.UUID, msg models.Message) (uuid.UUID, error) {
	n, err := s.storage.Notification().CreateNotification(ctx, models.Notification{UserID: userID, Message: msg})
	if err != nil {
		return uuid.Nil, fmt.Errorf("can't store notification: %w", err)
	}

	payload, err := json.Marshal(Event{
		Event: EventNew,
		Data: Payload{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Text,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		},
	})
	if err != nil {
		return n.ID, fmt.Errorf("can't encode notification: %w", err)
	}

	if err := s.publisher.Publish(ctx, Channel(userID), payload); err != nil {
		metrics.NotificationsPublished.WithLabelValues("failure").Inc()
		s.logger.Warn("Failed to publish notification", "user_id", userID, "notification_id", n.ID, "error", err)
		return n.ID, nil
	}

	metrics.NotificationsPublished.WithLabelValues("success").Inc()
	return n.ID, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.storage.Notification().ListNotifications(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.Notification, error) {
	return s.storage.Notification().MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.storage.Notification().MarkAllRead(ctx, userID)
}

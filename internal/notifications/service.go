package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/fcm"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Service defines notification list/read operations and delivery.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Notify(ctx context.Context, input Input) (*NotificationDTO, error)
}

type realtimePublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event realtime.Event) error
}

type pushSender interface {
	SendToUser(ctx context.Context, userID uuid.UUID, msg fcm.Message) error
}

type ServiceParams struct {
	Repo     Repository
	Realtime realtimePublisher
	Push     pushSender
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	realtime realtimePublisher
	push     pushSender
	logg     *logger.Logger
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []NotificationDTO `json:"items"`
	Cursor string            `json:"cursor"`
}

// Input describes one notification to deliver.
type Input struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
	Link    string
	Data    map[string]string
}

type NotificationDTO struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Link      *string                `json:"link,omitempty"`
	Data      json.RawMessage        `json:"data,omitempty"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func toDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		Data:      n.Data,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

// createdSignal is the realtime payload for a new notification.
type createdSignal struct {
	Notification NotificationDTO `json:"notification"`
	UnreadCount  int64           `json:"unread_count"`
}

// NewService wires notifications dependencies. Realtime and push are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:     params.Repo,
		realtime: params.Realtime,
		push:     params.Push,
		logg:     params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.Inbox(ctx, inboxQuery{
		UserID:     params.UserID,
		Limit:      params.Limit,
		After:      after,
		UnreadOnly: params.UnreadOnly,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	page := pagination.BuildPage(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	items := make([]NotificationDTO, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, toDTO(row))
	}
	return &ListResult{Items: items, Cursor: page.NextCursor}, nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return count, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	found, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

// Notify persists the notification, then signals the user's open sockets
// and devices. Only the insert can fail the call.
func (s *service) Notify(ctx context.Context, input Input) (*NotificationDTO, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown notification type %q", input.Type))
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}

	row := &models.Notification{
		ID:        uuid.New(),
		UserID:    input.UserID,
		Type:      input.Type,
		Title:     title,
		Message:   strings.TrimSpace(input.Message),
		CreatedAt: time.Now().UTC(),
	}
	if link := strings.TrimSpace(input.Link); link != "" {
		row.Link = &link
	}
	if len(input.Data) > 0 {
		raw, err := json.Marshal(input.Data)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode notification data")
		}
		row.Data = raw
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}

	dto := toDTO(*row)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":           input.UserID.String(),
		"notification_id":   row.ID.String(),
		"notification_type": input.Type,
	})

	if s.realtime != nil {
		unread, err := s.repo.UnreadCount(ctx, input.UserID)
		if err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "notifications.unread_count_failed")
		}
		signal := createdSignal{Notification: dto, UnreadCount: unread}
		if err := s.realtime.Publish(ctx, input.UserID, realtime.NewEvent(realtime.EventNotificationCreated, signal)); err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "notifications.realtime_failed")
		}
	}

	if s.push != nil {
		if err := s.push.SendToUser(ctx, input.UserID, pushMessage(*row, input.Data)); err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "notifications.push_failed")
		}
	}

	s.logg.Info(logCtx, "notifications.created")
	return &dto, nil
}

func pushMessage(n models.Notification, extra map[string]string) fcm.Message {
	data := map[string]string{
		"notification_id": n.ID.String(),
		"type":            string(n.Type),
	}
	if n.Link != nil {
		data["link"] = *n.Link
	}
	for k, v := range extra {
		if _, reserved := data[k]; !reserved {
			data[k] = v
		}
	}
	return fcm.Message{Title: n.Title, Body: n.Message, Data: data}
}

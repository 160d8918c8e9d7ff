package service

import (
	"context"
	"log"

	"github.com/fleamarket-app/backend/internal/model"
	"github.com/fleamarket-app/backend/internal/repository"
)

type NotificationService interface {
	Notify(ctx context.Context, userUID, typ, title, body string, listingID, roomID *uint64)
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByRoom(ctx context.Context, userUID string, roomID uint64)
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

// Notify is best-effort; it logs errors but does not return them to avoid
// breaking main flows.
func (s *notificationService) Notify(ctx context.Context, userUID, typ, title, body string, listingID, roomID *uint64) {
	if userUID == "" || typ == "" {
		return
	}
	n := &model.Notification{
		UserUID:   userUID,
		Type:      typ,
		Title:     title,
		Body:      body,
		ListingID: listingID,
		RoomID:    roomID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		log.Printf("notify %s failed: %v", typ, err)
	}
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, nil
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) error {
	if userUID == "" {
		return nil
	}
	return s.repo.MarkAllRead(ctx, userUID)
}

func (s *notificationService) MarkByRoom(ctx context.Context, userUID string, roomID uint64) {
	if userUID == "" {
		return
	}
	if err := s.repo.MarkByRoom(ctx, userUID, roomID); err != nil {
		log.Printf("mark notifications by room failed: %v", err)
	}
}

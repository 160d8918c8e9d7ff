package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fleamarket-app/backend/internal/model"
	"gorm.io/gorm"
)

// RoomSummaryRow is the typed read model behind the "my rooms" list. One
// aggregating query fills it to avoid per-room round trips.
type RoomSummaryRow struct {
	RoomID         uint64
	ListingID      uint64
	ListingTitle   *string
	OtherUID       string
	LastMessageID  *uint64
	LastContent    *string
	LastInsertedAt *time.Time
	LastSenderUID  *string
	UnreadCount    int64
	RoomCreatedAt  time.Time
}

type ChatRepository interface {
	// FindRoomByPair looks up the room for a normalized (lo, hi) pair in the
	// given listing scope (0 = general room). Returns (nil, nil) when absent.
	FindRoomByPair(ctx context.Context, listingID uint64, lo, hi string) (*model.Room, error)
	// CreateRoom inserts the room and both participant rows atomically.
	// Returns gorm.ErrDuplicatedKey when a concurrent caller won the race.
	CreateRoom(ctx context.Context, room *model.Room) error
	FindRoomByID(ctx context.Context, id uint64) (*model.Room, error)
	DeleteRoomCascade(ctx context.Context, roomID uint64) error

	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessagesAfter(ctx context.Context, roomID, afterID uint64) ([]model.Message, error)
	ListMessagesBefore(ctx context.Context, roomID, beforeID uint64, limit int) ([]model.Message, error)
	ListLatestMessages(ctx context.Context, roomID uint64, limit int) ([]model.Message, error)

	FindParticipant(ctx context.Context, roomID uint64, memberUID string) (*model.RoomParticipant, error)
	// AdvanceReadPosition ratchets the stored read position forward, creating
	// the participant row if it is missing. Positions never move backwards.
	AdvanceReadPosition(ctx context.Context, roomID uint64, memberUID string, messageID uint64) error
	CountUnread(ctx context.Context, roomID uint64, memberUID string) (int64, error)

	ListRoomSummaries(ctx context.Context, memberUID string) ([]RoomSummaryRow, error)
	SetDB(db *gorm.DB)
}

type chatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) SetDB(db *gorm.DB) {
	r.db = db
}

func (r *chatRepository) FindRoomByPair(ctx context.Context, listingID uint64, lo, hi string) (*model.Room, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var room model.Room
	err := r.db.WithContext(ctx).
		Where("listing_id = ? AND member_lo = ? AND member_hi = ?", listingID, lo, hi).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

func (r *chatRepository) CreateRoom(ctx context.Context, room *model.Room) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		parts := []model.RoomParticipant{
			{RoomID: room.ID, MemberUID: room.MemberLo},
			{RoomID: room.ID, MemberUID: room.MemberHi},
		}
		return tx.Create(&parts).Error
	})
}

func (r *chatRepository) FindRoomByID(ctx context.Context, id uint64) (*model.Room, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var room model.Room
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoomCascade hard-deletes child rows before the room itself.
func (r *chatRepository) DeleteRoomCascade(ctx context.Context, roomID uint64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", roomID).Delete(&model.RoomParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Room{}, roomID).Error
	})
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatRepository) ListMessagesAfter(ctx context.Context, roomID, afterID uint64) ([]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var msgs []model.Message
	if err := r.db.WithContext(ctx).
		Where("room_id = ? AND id > ?", roomID, afterID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatRepository) ListMessagesBefore(ctx context.Context, roomID, beforeID uint64, limit int) ([]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var msgs []model.Message
	if err := r.db.WithContext(ctx).
		Where("room_id = ? AND id < ?", roomID, beforeID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatRepository) ListLatestMessages(ctx context.Context, roomID uint64, limit int) ([]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var msgs []model.Message
	if err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatRepository) FindParticipant(ctx context.Context, roomID uint64, memberUID string) (*model.RoomParticipant, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var p model.RoomParticipant
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND member_uid = ?", roomID, memberUID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *chatRepository) AdvanceReadPosition(ctx context.Context, roomID uint64, memberUID string, messageID uint64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	// Single conditional UPDATE keeps the ratchet race-safe: concurrent
	// out-of-order acks can never move the position backwards.
	res := r.db.WithContext(ctx).Model(&model.RoomParticipant{}).
		Where("room_id = ? AND member_uid = ?", roomID, memberUID).
		Where("last_read_message_id IS NULL OR last_read_message_id < ?", messageID).
		Update("last_read_message_id", messageID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.RoomParticipant{}).
		Where("room_id = ? AND member_uid = ?", roomID, memberUID).
		Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		// row exists and is already at or past messageID
		return nil
	}
	p := &model.RoomParticipant{RoomID: roomID, MemberUID: memberUID, LastReadMessageID: &messageID}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost the backfill race; the ratchet update settles it
			return r.AdvanceReadPosition(ctx, roomID, memberUID, messageID)
		}
		return err
	}
	return nil
}

func (r *chatRepository) CountUnread(ctx context.Context, roomID uint64, memberUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var cnt int64
	err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(*)
		FROM chat_messages m
		WHERE m.room_id = ?
		  AND m.sender_uid <> ?
		  AND m.id > COALESCE((
			SELECT p.last_read_message_id
			FROM chat_participants p
			WHERE p.room_id = m.room_id AND p.member_uid = ?
		  ), 0)
	`, roomID, memberUID, memberUID).Scan(&cnt).Error
	if err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *chatRepository) ListRoomSummaries(ctx context.Context, memberUID string) ([]RoomSummaryRow, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var rows []RoomSummaryRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			r.id         AS room_id,
			r.listing_id AS listing_id,
			l.title      AS listing_title,
			CASE WHEN r.member_lo = ? THEN r.member_hi ELSE r.member_lo END AS other_uid,
			lm.id          AS last_message_id,
			lm.content     AS last_content,
			lm.inserted_at AS last_inserted_at,
			lm.sender_uid  AS last_sender_uid,
			(
				SELECT COUNT(*)
				FROM chat_messages cm
				WHERE cm.room_id = r.id
				  AND cm.sender_uid <> ?
				  AND cm.id > COALESCE(p.last_read_message_id, 0)
			)            AS unread_count,
			r.created_at AS room_created_at
		FROM chat_rooms r
		JOIN chat_participants p ON p.room_id = r.id AND p.member_uid = ?
		LEFT JOIN listings l ON l.id = r.listing_id
		LEFT JOIN chat_messages lm ON lm.id = (
			SELECT MAX(id) FROM chat_messages WHERE room_id = r.id
		)
		ORDER BY (lm.id IS NULL) ASC, COALESCE(lm.inserted_at, r.created_at) DESC, r.id DESC
	`, memberUID, memberUID, memberUID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

package model

import "time"

// RoomParticipant carries one member's read position in a room. The
// composite key mirrors the (room, member) identity; LastReadMessageID is a
// monotonic ratchet and never decreases once set.
type RoomParticipant struct {
	RoomID            uint64    `gorm:"column:room_id;primaryKey" json:"roomId"`
	MemberUID         string    `gorm:"column:member_uid;primaryKey;size:128" json:"memberUid"`
	LastReadMessageID *uint64   `gorm:"column:last_read_message_id" json:"lastReadMessageId"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (RoomParticipant) TableName() string {
	return "chat_participants"
}

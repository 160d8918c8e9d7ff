package model

import "time"

// Message is one immutable chat message. IDs come from a single
// auto-increment counter, so within a room they are strictly increasing and
// agree with InsertedAt ordering.
type Message struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID     uint64    `gorm:"column:room_id;index:idx_msg_room_id;not null" json:"roomId"`
	SenderUID  string    `gorm:"column:sender_uid;size:128;index;not null" json:"senderUid"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	InsertedAt time.Time `gorm:"column:inserted_at;autoCreateTime" json:"insertedAt"`
}

func (Message) TableName() string {
	return "chat_messages"
}

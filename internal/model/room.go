package model

import "time"

// Room is a 1:1 conversation between two members, optionally tied to a
// listing. ListingID 0 means a general room; it is stored as 0 rather than
// NULL so uniq_room_scope also guards the listing-less scope (MySQL treats
// NULLs in unique indexes as distinct).
//
// MemberLo/MemberHi hold the participant pair in lexicographic order, so the
// unique index enforces at most one room per (listing, unordered pair) no
// matter which side opens it.
type Room struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID uint64    `gorm:"column:listing_id;uniqueIndex:uniq_room_scope" json:"listingId"`
	MemberLo  string    `gorm:"column:member_lo;size:128;uniqueIndex:uniq_room_scope;index" json:"-"`
	MemberHi  string    `gorm:"column:member_hi;size:128;uniqueIndex:uniq_room_scope;index" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Room) TableName() string {
	return "chat_rooms"
}

// NormalizePair orders an unordered member pair into (lo, hi).
func NormalizePair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// Other returns the counterpart of uid in the room's pair.
func (r *Room) Other(uid string) string {
	if r.MemberLo == uid {
		return r.MemberHi
	}
	return r.MemberLo
}

// Has reports whether uid is one of the room's two participants.
func (r *Room) Has(uid string) bool {
	return r.MemberLo == uid || r.MemberHi == uid
}

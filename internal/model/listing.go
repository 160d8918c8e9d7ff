package model

import "time"

type Listing struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerUID   string    `gorm:"column:seller_uid;size:128;index;not null" json:"sellerUid"`
	Title       string    `gorm:"size:120;not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Price       uint      `gorm:"not null" json:"price"`
	Category    string    `gorm:"size:64" json:"category"`
	TradeStatus string    `gorm:"column:trade_status;size:32;default:FOR_SALE" json:"tradeStatus"`
	ThumbURL    *string   `gorm:"column:thumb_url;size:512" json:"thumbUrl"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Listing) TableName() string {
	return "listings"
}

package models

import "time"

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
)

// Friendship links two readers. The pair (requester, addressee) is unique.
type Friendship struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequesterID uint      `gorm:"uniqueIndex:idx_friend_pair;not null" json:"requester_id"`
	AddresseeID uint      `gorm:"uniqueIndex:idx_friend_pair;index;not null" json:"addressee_id"`
	Status      string    `gorm:"size:16;not null;default:'pending'" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Requester   User      `gorm:"foreignKey:RequesterID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Addressee   User      `gorm:"foreignKey:AddresseeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

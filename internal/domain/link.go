package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Link is a tracked short link. It is owned by the link-management subsystem,
// the redirect path only reads it.
type Link struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	UserID         string    `gorm:"column:user_id;size:64;index" json:"user_id"`
	Slug           string    `gorm:"column:slug;size:64;not null;uniqueIndex" json:"slug"`
	Name           string    `gorm:"column:name;size:200" json:"name"`
	DestinationURL string    `gorm:"column:destination_url;type:text;not null" json:"destination_url"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName возвращает название таблицы для GORM
func (Link) TableName() string {
	return "links"
}

func (l *Link) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

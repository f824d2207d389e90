package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxTitleLength bounds a block title after trimming.
const MaxTitleLength = 200

// StudyBlock is a user-scheduled time interval eligible for exactly one
// email reminder. The interval is half-open: [StartTime, EndTime). The
// block's ID doubles as the link id for the secondary-store mirror record.
type StudyBlock struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	StartTime    time.Time `gorm:"index;not null" json:"start_time"`
	EndTime      time.Time `gorm:"not null" json:"end_time"`
	ReminderSent bool      `gorm:"default:false" json:"reminder_sent"`
	IsActive     bool      `gorm:"index" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (StudyBlock) TableName() string { return "study_blocks" }

func (b *StudyBlock) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

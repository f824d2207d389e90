package models

import "time"

// JobTypeReminder is the job type used for reminder dispatch locks.
const JobTypeReminder = "reminder"

// JobLock represents exclusive, time-bounded ownership of a job for one
// block. The composite unique index makes lock acquisition a single atomic
// insert: whichever scanner tick inserts first wins, every other insert
// fails the constraint. A lock never released explicitly is removed by the
// expiry reaper once ExpiresAt passes.
type JobLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	JobType   string    `gorm:"uniqueIndex:idx_job_lock_key;size:50;not null" json:"job_type"`
	BlockID   string    `gorm:"uniqueIndex:idx_job_lock_key;size:36;not null" json:"block_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_job_lock_key;not null" json:"user_id"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (JobLock) TableName() string { return "job_locks" }

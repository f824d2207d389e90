package services

import (
	"errors"
	"time"

	"github.com/studyblocks/backend/internal/models"
	"github.com/studyblocks/backend/pkg/logger"
	"gorm.io/gorm"
)

// LockService manages distributed job locks backed by the job_locks table.
// Acquisition is a single atomic insert against the composite unique index,
// never a read-then-write: under concurrent scanner ticks (or multiple
// process instances) exactly one insert succeeds and every other one fails
// the constraint.
type LockService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLockService(db *gorm.DB) *LockService {
	return &LockService{db: db, now: time.Now}
}

// Acquire tries to take the lock for (jobType, blockID, userID) for the
// given TTL. It returns false with a nil error when the lock is already
// held: contention is a normal skip signal, not an error.
//
// An expired row for the same key is cleared first; the conditional delete
// only removes rows already past expiry, so it cannot steal a live lock.
func (s *LockService) Acquire(jobType, blockID string, userID uint, ttl time.Duration) (bool, error) {
	now := s.now()

	if err := s.db.
		Where("job_type = ? AND block_id = ? AND user_id = ? AND expires_at <= ?",
			jobType, blockID, userID, now).
		Delete(&models.JobLock{}).Error; err != nil {
		return false, err
	}

	lock := models.JobLock{
		JobType:   jobType,
		BlockID:   blockID,
		UserID:    userID,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	err := s.db.Create(&lock).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Release removes the lock for the given key. It is idempotent: releasing
// an absent lock is not an error.
func (s *LockService) Release(jobType, blockID string, userID uint) error {
	return s.db.
		Where("job_type = ? AND block_id = ? AND user_id = ?", jobType, blockID, userID).
		Delete(&models.JobLock{}).Error
}

// ReapExpired deletes all locks whose expiry has passed and returns how
// many were removed.
func (s *LockService) ReapExpired() (int64, error) {
	result := s.db.Where("expires_at <= ?", s.now()).Delete(&models.JobLock{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		logger.Debug().Int64("count", result.RowsAffected).Msg("reaped expired job locks")
	}
	return result.RowsAffected, nil
}

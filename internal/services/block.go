package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/studyblocks/backend/internal/models"
	"github.com/studyblocks/backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrTitleRequired    = errors.New("title is required")
	ErrTitleTooLong     = errors.New("title is too long")
	ErrInvalidTimeRange = errors.New("end time must be after start time")
	ErrLeadTimeTooShort = errors.New("block must start at least the minimum lead time from now")
	ErrBlockOverlap     = errors.New("block overlaps an existing block")
	ErrBlockNotFound    = errors.New("block not found")
)

// BlockInput carries the caller-supplied fields for a create or update.
type BlockInput struct {
	Title     string
	StartTime time.Time
	EndTime   time.Time
}

// BlockService owns the study_blocks table: CRUD with synchronous overlap
// validation, plus the query surface the reminder scanner depends on.
// Every committed primary write is mirrored best-effort to the secondary
// store; a mirror failure never rolls back or fails the primary write.
type BlockService struct {
	db      *gorm.DB
	mirror  *SyncCoordinator
	minLead time.Duration
	now     func() time.Time
}

func NewBlockService(db *gorm.DB, mirror *SyncCoordinator, minLead time.Duration) *BlockService {
	return &BlockService{db: db, mirror: mirror, minLead: minLead, now: time.Now}
}

func (s *BlockService) validateInput(in *BlockInput, enforceLead bool) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return ErrTitleRequired
	}
	if len(in.Title) > models.MaxTitleLength {
		return ErrTitleTooLong
	}
	if !in.EndTime.After(in.StartTime) {
		return ErrInvalidTimeRange
	}
	if enforceLead && in.StartTime.Before(s.now().Add(s.minLead)) {
		return ErrLeadTimeTooShort
	}
	return nil
}

// Create validates and persists a new block, then mirrors it.
func (s *BlockService) Create(userID uint, in BlockInput) (*models.StudyBlock, error) {
	if err := s.validateInput(&in, true); err != nil {
		return nil, err
	}

	conflict, err := s.FindOverlapping(userID, in.StartTime, in.EndTime, "")
	if err != nil {
		return nil, fmt.Errorf("overlap check failed: %w", err)
	}
	if conflict {
		return nil, ErrBlockOverlap
	}

	block := &models.StudyBlock{
		UserID:    userID,
		Title:     in.Title,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		IsActive:  true,
	}
	if err := s.db.Create(block).Error; err != nil {
		return nil, err
	}

	if res := s.mirror.MirrorCreate(block); !res.OK() {
		logger.Warn().Err(res.Err).Str("block_id", block.ID).Msg("mirror create failed, secondary store left stale")
	}
	return block, nil
}

// Update validates and persists changes to an existing active block owned
// by userID. Editing the times resets the reminder_sent flag so the block
// becomes eligible for a fresh reminder; this is the only path that ever
// clears the flag.
func (s *BlockService) Update(userID uint, id string, in BlockInput) (*models.StudyBlock, error) {
	block, err := s.GetByID(userID, id)
	if err != nil {
		return nil, err
	}

	timesChanged := !in.StartTime.Equal(block.StartTime) || !in.EndTime.Equal(block.EndTime)

	if err := s.validateInput(&in, timesChanged); err != nil {
		return nil, err
	}

	if timesChanged {
		conflict, err := s.FindOverlapping(userID, in.StartTime, in.EndTime, block.ID)
		if err != nil {
			return nil, fmt.Errorf("overlap check failed: %w", err)
		}
		if conflict {
			return nil, ErrBlockOverlap
		}
	}

	updates := map[string]interface{}{
		"title":      in.Title,
		"start_time": in.StartTime,
		"end_time":   in.EndTime,
	}
	if timesChanged {
		updates["reminder_sent"] = false
	}
	if err := s.db.Model(block).Updates(updates).Error; err != nil {
		return nil, err
	}

	if res := s.mirror.MirrorUpdate(block); !res.OK() {
		logger.Warn().Err(res.Err).Str("block_id", block.ID).Msg("mirror update failed, secondary store left stale")
	}
	return block, nil
}

// Delete soft-deletes the block (is_active=false) and mirrors the removal.
func (s *BlockService) Delete(userID uint, id string) error {
	result := s.db.Model(&models.StudyBlock{}).
		Where("id = ? AND user_id = ? AND is_active = ?", id, userID, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBlockNotFound
	}

	if res := s.mirror.MirrorDelete(id); !res.OK() {
		logger.Warn().Err(res.Err).Str("block_id", id).Msg("mirror delete failed, secondary store left stale")
	}
	return nil
}

func (s *BlockService) GetByID(userID uint, id string) (*models.StudyBlock, error) {
	var block models.StudyBlock
	err := s.db.
		Where("id = ? AND user_id = ? AND is_active = ?", id, userID, true).
		First(&block).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (s *BlockService) List(userID uint) ([]models.StudyBlock, error) {
	var blocks []models.StudyBlock
	err := s.db.
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("start_time ASC").
		Find(&blocks).Error
	return blocks, err
}

// FindOverlapping reports whether any active block of the user collides
// with the half-open interval [start, end). excludeID lets an update skip
// the block being edited. The four clauses match the Overlaps predicate;
// a block ending exactly when another starts is not a collision.
func (s *BlockService) FindOverlapping(userID uint, start, end time.Time, excludeID string) (bool, error) {
	var count int64
	query := s.db.Model(&models.StudyBlock{}).
		Where("user_id = ? AND is_active = ?", userID, true)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Where(
		"(start_time <= ? AND end_time > ?)"+ // candidate start inside block
			" OR (start_time < ? AND end_time >= ?)"+ // candidate end inside block
			" OR (start_time >= ? AND end_time <= ?)"+ // candidate contains block
			" OR (start_time <= ? AND end_time >= ?)", // block contains candidate
		start, start,
		end, end,
		start, end,
		start, end,
	).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindActiveBlocksInWindow returns active blocks whose start time falls
// inside [windowStart, windowEnd) and whose reminder has not been sent.
func (s *BlockService) FindActiveBlocksInWindow(windowStart, windowEnd time.Time) ([]models.StudyBlock, error) {
	var blocks []models.StudyBlock
	err := s.db.
		Where("is_active = ? AND reminder_sent = ? AND start_time >= ? AND start_time < ?",
			true, false, windowStart, windowEnd).
		Find(&blocks).Error
	return blocks, err
}

// MarkReminderSent flips reminder_sent to true for the block. The update
// is conditional on the flag still being false, so the transition is
// monotonic and concurrent markers cannot both observe success.
func (s *BlockService) MarkReminderSent(id string) (*models.StudyBlock, error) {
	result := s.db.Model(&models.StudyBlock{}).
		Where("id = ? AND is_active = ? AND reminder_sent = ?", id, true, false).
		Update("reminder_sent", true)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrBlockNotFound
	}

	var block models.StudyBlock
	if err := s.db.First(&block, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

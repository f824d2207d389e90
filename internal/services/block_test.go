package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studyblocks/backend/internal/models"
)

// fakeMirrorClient records mirror mutations and can be told to fail.
type fakeMirrorClient struct {
	mu      sync.Mutex
	upserts []MirrorRecord
	deletes []string
	failing bool
}

func (f *fakeMirrorClient) Upsert(ctx context.Context, rec *MirrorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("mirror store unreachable")
	}
	f.upserts = append(f.upserts, *rec)
	return nil
}

func (f *fakeMirrorClient) Delete(ctx context.Context, linkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("mirror store unreachable")
	}
	f.deletes = append(f.deletes, linkID)
	return nil
}

func (f *fakeMirrorClient) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *fakeMirrorClient) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeMirrorClient) lastUpsert(t *testing.T) MirrorRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.upserts) == 0 {
		t.Fatal("no mirror upserts recorded")
	}
	return f.upserts[len(f.upserts)-1]
}

func newBlockFixture(t *testing.T) (*BlockService, *fakeMirrorClient, *models.User) {
	t.Helper()

	db := newTestDB(t)
	client := &fakeMirrorClient{}
	coordinator := NewSyncCoordinator(NewSyncMirrorQueue(client, time.Second))
	svc := NewBlockService(db, coordinator, 15*time.Minute)
	user := seedUser(t, db, "alice", "alice@example.com")
	return svc, client, user
}

func validInput(base time.Time) BlockInput {
	return BlockInput{
		Title:     "Algebra revision",
		StartTime: base.Add(time.Hour),
		EndTime:   base.Add(2 * time.Hour),
	}
}

func TestBlockService_Create(t *testing.T) {
	svc, client, user := newBlockFixture(t)
	now := time.Now()

	block, err := svc.Create(user.ID, BlockInput{
		Title:     "  Algebra revision  ",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if block.ID == "" {
		t.Error("block should get an id")
	}
	if block.Title != "Algebra revision" {
		t.Errorf("title = %q, expected trimmed title", block.Title)
	}
	if block.ReminderSent {
		t.Error("new block must start with reminder_sent=false")
	}
	if !block.IsActive {
		t.Error("new block must be active")
	}

	rec := client.lastUpsert(t)
	if rec.LinkID != block.ID {
		t.Errorf("mirror link id = %q, expected %q", rec.LinkID, block.ID)
	}
}

func TestBlockService_CreateValidation(t *testing.T) {
	svc, _, user := newBlockFixture(t)
	now := time.Now()

	tests := []struct {
		name    string
		input   BlockInput
		wantErr error
	}{
		{
			name:    "empty title",
			input:   BlockInput{Title: "   ", StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)},
			wantErr: ErrTitleRequired,
		},
		{
			name: "title too long",
			input: BlockInput{
				Title:     string(make([]byte, models.MaxTitleLength+1)),
				StartTime: now.Add(time.Hour),
				EndTime:   now.Add(2 * time.Hour),
			},
			wantErr: ErrTitleTooLong,
		},
		{
			name:    "end before start",
			input:   BlockInput{Title: "x", StartTime: now.Add(2 * time.Hour), EndTime: now.Add(time.Hour)},
			wantErr: ErrInvalidTimeRange,
		},
		{
			name:    "end equals start",
			input:   BlockInput{Title: "x", StartTime: now.Add(time.Hour), EndTime: now.Add(time.Hour)},
			wantErr: ErrInvalidTimeRange,
		},
		{
			name:    "lead time too short",
			input:   BlockInput{Title: "x", StartTime: now.Add(5 * time.Minute), EndTime: now.Add(time.Hour)},
			wantErr: ErrLeadTimeTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(user.ID, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, expected %v", err, tt.wantErr)
			}
		})
	}
}

func TestBlockService_CreateRejectsOverlap(t *testing.T) {
	svc, _, user := newBlockFixture(t)
	now := time.Now()

	if _, err := svc.Create(user.ID, validInput(now)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Half an hour into the existing block.
	_, err := svc.Create(user.ID, BlockInput{
		Title:     "Conflicting",
		StartTime: now.Add(90 * time.Minute),
		EndTime:   now.Add(3 * time.Hour),
	})
	if !errors.Is(err, ErrBlockOverlap) {
		t.Errorf("Create() error = %v, expected ErrBlockOverlap", err)
	}
}

func TestBlockService_TouchingBlocksDoNotOverlap(t *testing.T) {
	svc, _, user := newBlockFixture(t)
	now := time.Now()

	first, err := svc.Create(user.ID, validInput(now))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Starts exactly when the first one ends.
	_, err = svc.Create(user.ID, BlockInput{
		Title:     "Back to back",
		StartTime: first.EndTime,
		EndTime:   first.EndTime.Add(time.Hour),
	})
	if err != nil {
		t.Errorf("touching blocks should not conflict, got %v", err)
	}
}

func TestBlockService_OverlapScopedToUserAndActive(t *testing.T) {
	svc, _, user := newBlockFixture(t)
	other := seedUser(t, svc.db, "bob", "bob@example.com")
	now := time.Now()

	block, err := svc.Create(user.ID, validInput(now))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Same interval for a different user is fine.
	if _, err := svc.Create(other.ID, validInput(now)); err != nil {
		t.Errorf("other user's identical block should not conflict, got %v", err)
	}

	// After soft delete the interval frees up.
	if err := svc.Delete(user.ID, block.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Create(user.ID, validInput(now)); err != nil {
		t.Errorf("deleted block should not conflict, got %v", err)
	}
}

func TestBlockService_UpdateExcludesSelfFromOverlap(t *testing.T) {
	svc, _, user := newBlockFixture(t)
	now := time.Now()

	block, err := svc.Create(user.ID, validInput(now))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Shift by 30 minutes; the new interval still overlaps the old one,
	// which must be excluded from the check.
	newStart := block.StartTime.Add(30 * time.Minute)
	if _, err := svc.Update(user.ID, block.ID, BlockInput{
		Title:     block.Title,
		StartTime: newStart,
		EndTime:   block.EndTime.Add(30 * time.Minute),
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	fresh, err := svc.GetByID(user.ID, block.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !fresh.StartTime.Equal(newStart) {
		t.Errorf("start time = %v, expected %v", fresh.StartTime, newStart)
	}
}

func TestBlockService_TimeEditResetsReminderSent(t *testing.T) {
	svc, _, user := newBlockFixture(t)
	now := time.Now()

	block, err := svc.Create(user.ID, validInput(now))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.MarkReminderSent(block.ID); err != nil {
		t.Fatalf("MarkReminderSent() error = %v", err)
	}

	// Title-only edit keeps the flag.
	if _, err := svc.Update(user.ID, block.ID, BlockInput{
		Title:     "Renamed",
		StartTime: block.StartTime,
		EndTime:   block.EndTime,
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	fresh, _ := svc.GetByID(user.ID, block.ID)
	if !fresh.ReminderSent {
		t.Error("title-only edit must not reset reminder_sent")
	}

	// Moving the block re-arms the reminder.
	if _, err := svc.Update(user.ID, block.ID, BlockInput{
		Title:     "Renamed",
		StartTime: block.StartTime.Add(time.Hour),
		EndTime:   block.EndTime.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	fresh, _ = svc.GetByID(user.ID, block.ID)
	if fresh.ReminderSent {
		t.Error("time edit must reset reminder_sent")
	}
}

func TestBlockService_MarkReminderSentIsMonotonic(t *testing.T) {
	svc, _, user := newBlockFixture(t)
	now := time.Now()

	block, err := svc.Create(user.ID, validInput(now))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.MarkReminderSent(block.ID); err != nil {
		t.Fatalf("MarkReminderSent() error = %v", err)
	}

	// Second marker loses the conditional update.
	if _, err := svc.MarkReminderSent(block.ID); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("second MarkReminderSent() error = %v, expected ErrBlockNotFound", err)
	}

	if _, err := svc.MarkReminderSent("no-such-id"); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("MarkReminderSent(unknown) error = %v, expected ErrBlockNotFound", err)
	}
}

func TestBlockService_FindActiveBlocksInWindow(t *testing.T) {
	svc, _, user := newBlockFixture(t)
	now := time.Now().Truncate(time.Second)

	inWindow, err := svc.Create(user.ID, BlockInput{
		Title:     "In window",
		StartTime: now.Add(10 * time.Minute),
		EndTime:   now.Add(40 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(user.ID, BlockInput{
		Title:     "Too far out",
		StartTime: now.Add(2 * time.Hour),
		EndTime:   now.Add(3 * time.Hour),
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	windowStart := now.Add(9 * time.Minute)
	windowEnd := now.Add(12 * time.Minute)

	blocks, err := svc.FindActiveBlocksInWindow(windowStart, windowEnd)
	if err != nil {
		t.Fatalf("FindActiveBlocksInWindow() error = %v", err)
	}
	if len(blocks) != 1 || blocks[0].ID != inWindow.ID {
		t.Fatalf("window scan returned %d blocks, expected only the in-window one", len(blocks))
	}

	// Once sent, the block drops out of the scan.
	if _, err := svc.MarkReminderSent(inWindow.ID); err != nil {
		t.Fatalf("MarkReminderSent() error = %v", err)
	}
	blocks, err = svc.FindActiveBlocksInWindow(windowStart, windowEnd)
	if err != nil {
		t.Fatalf("FindActiveBlocksInWindow() error = %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("sent block should be excluded from the window scan, got %d", len(blocks))
	}
}

// Mirror staleness tolerance: a failing mirror never blocks the primary
// write, and the next successful mutation re-syncs the record.
func TestBlockService_MirrorFailureLeavesPrimaryIntact(t *testing.T) {
	svc, client, user := newBlockFixture(t)
	now := time.Now()

	client.setFailing(true)

	block, err := svc.Create(user.ID, validInput(now))
	if err != nil {
		t.Fatalf("Create() must succeed despite mirror failure, got %v", err)
	}

	// Primary record is independently retrievable.
	fresh, err := svc.GetByID(user.ID, block.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if client.upsertCount() != 0 {
		t.Error("mirror should have recorded nothing while failing")
	}

	// A later update re-attempts the mirror and catches it up.
	client.setFailing(false)
	if _, err := svc.Update(user.ID, fresh.ID, BlockInput{
		Title:     "Recovered",
		StartTime: fresh.StartTime,
		EndTime:   fresh.EndTime,
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rec := client.lastUpsert(t)
	if rec.LinkID != block.ID {
		t.Errorf("re-sync link id = %q, expected %q", rec.LinkID, block.ID)
	}
	if rec.Title != "Recovered" {
		t.Errorf("re-sync title = %q, expected %q", rec.Title, "Recovered")
	}
}

func TestBlockService_DeleteMirrorsRemoval(t *testing.T) {
	svc, client, user := newBlockFixture(t)
	now := time.Now()

	block, err := svc.Create(user.ID, validInput(now))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.Delete(user.ID, block.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.deletes) != 1 || client.deletes[0] != block.ID {
		t.Errorf("mirror deletes = %v, expected [%s]", client.deletes, block.ID)
	}
}

func TestBlockService_DeleteUnknownBlock(t *testing.T) {
	svc, _, user := newBlockFixture(t)

	if err := svc.Delete(user.ID, "no-such-id"); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("Delete(unknown) error = %v, expected ErrBlockNotFound", err)
	}
}

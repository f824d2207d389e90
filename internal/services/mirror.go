package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/studyblocks/backend/internal/config"
	"github.com/studyblocks/backend/internal/models"
	"github.com/studyblocks/backend/pkg/logger"
)

// Mirror operation kinds.
const (
	MirrorOpUpsert = "upsert"
	MirrorOpDelete = "delete"
)

// MirrorRecord is the secondary-store copy of a block, linked back to the
// primary row by LinkID. It is never authoritative: overlap and identity
// checks always go to the primary store.
type MirrorRecord struct {
	LinkID       string    `json:"link_id"`
	UserID       uint      `json:"user_id"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	ReminderSent bool      `json:"reminder_sent"`
	IsActive     bool      `json:"is_active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MirrorClient is the mutation surface of the secondary store. Both
// operations are idempotent under retry.
type MirrorClient interface {
	Upsert(ctx context.Context, rec *MirrorRecord) error
	Delete(ctx context.Context, linkID string) error
}

// MirrorOp is one queued propagation step.
type MirrorOp struct {
	Kind   string        `json:"kind"` // upsert, delete
	LinkID string        `json:"link_id"`
	Record *MirrorRecord `json:"record,omitempty"`
}

// MirrorResult is the structured outcome of one mirror attempt so callers
// and tests can assert on mirror failures independently of primary success.
type MirrorResult struct {
	Op        string
	LinkID    string
	Attempted bool // false when mirroring is disabled
	Deferred  bool // true when handed to the async queue
	Err       error
}

func (r MirrorResult) OK() bool { return r.Err == nil }

// SyncCoordinator propagates block lifecycle events from the primary store
// to the secondary store. Every call is best-effort: the primary commit has
// already happened, so a failure here is logged and reported in the result,
// never raised into the caller's write path. Ops for the same record go
// through the queue in primary-commit order.
type SyncCoordinator struct {
	queue MirrorQueue
}

func NewSyncCoordinator(queue MirrorQueue) *SyncCoordinator {
	return &SyncCoordinator{queue: queue}
}

func mirrorRecordFor(block *models.StudyBlock) *MirrorRecord {
	return &MirrorRecord{
		LinkID:       block.ID,
		UserID:       block.UserID,
		Title:        block.Title,
		StartTime:    block.StartTime,
		EndTime:      block.EndTime,
		ReminderSent: block.ReminderSent,
		IsActive:     block.IsActive,
		UpdatedAt:    block.UpdatedAt,
	}
}

func (c *SyncCoordinator) MirrorCreate(block *models.StudyBlock) MirrorResult {
	return c.apply(&MirrorOp{Kind: MirrorOpUpsert, LinkID: block.ID, Record: mirrorRecordFor(block)})
}

func (c *SyncCoordinator) MirrorUpdate(block *models.StudyBlock) MirrorResult {
	return c.apply(&MirrorOp{Kind: MirrorOpUpsert, LinkID: block.ID, Record: mirrorRecordFor(block)})
}

func (c *SyncCoordinator) MirrorDelete(linkID string) MirrorResult {
	return c.apply(&MirrorOp{Kind: MirrorOpDelete, LinkID: linkID})
}

func (c *SyncCoordinator) MirrorReminderSent(block *models.StudyBlock) MirrorResult {
	return c.apply(&MirrorOp{Kind: MirrorOpUpsert, LinkID: block.ID, Record: mirrorRecordFor(block)})
}

func (c *SyncCoordinator) apply(op *MirrorOp) MirrorResult {
	result := MirrorResult{Op: op.Kind, LinkID: op.LinkID}
	if c == nil || c.queue == nil {
		return result
	}
	result.Attempted = true
	result.Deferred = c.queue.IsAsync()
	result.Err = c.queue.Enqueue(op)
	if result.Err != nil {
		logger.Warn().
			Err(result.Err).
			Str("op", op.Kind).
			Str("link_id", op.LinkID).
			Msg("mirror propagation failed")
	}
	return result
}

// HTTPMirrorClient talks to the secondary store over its REST surface:
// PUT /blocks/{linkID} to upsert, DELETE /blocks/{linkID} to remove.
type HTTPMirrorClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPMirrorClient(cfg *config.MirrorConfig) *HTTPMirrorClient {
	return &HTTPMirrorClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout()},
	}
}

func (c *HTTPMirrorClient) Upsert(ctx context.Context, rec *MirrorRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/blocks/%s", c.baseURL, rec.LinkID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.do(req)
}

func (c *HTTPMirrorClient) Delete(ctx context.Context, linkID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/blocks/%s", c.baseURL, linkID), nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.do(req)
}

func (c *HTTPMirrorClient) do(req *http.Request) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Deleting an absent record is a success: the mirror may already be
	// missing the row and the operation must stay idempotent.
	if resp.StatusCode == http.StatusNotFound && req.Method == http.MethodDelete {
		return nil
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mirror store returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

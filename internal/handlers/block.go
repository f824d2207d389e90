package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studyblocks/backend/internal/middleware"
	"github.com/studyblocks/backend/internal/services"
	"github.com/studyblocks/backend/pkg/response"
)

type BlockHandler struct {
	blockService *services.BlockService
}

func NewBlockHandler(blockService *services.BlockService) *BlockHandler {
	return &BlockHandler{blockService: blockService}
}

type blockRequest struct {
	Title     string    `json:"title" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
}

// blockError maps service validation errors onto the response taxonomy.
// Overlap is a conflict; everything else caller-side is a bad request.
func blockError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrBlockOverlap):
		response.Error(c, response.NewConflict(err.Error()))
	case errors.Is(err, services.ErrBlockNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, services.ErrTitleRequired),
		errors.Is(err, services.ErrTitleTooLong),
		errors.Is(err, services.ErrInvalidTimeRange),
		errors.Is(err, services.ErrLeadTimeTooShort):
		response.BadRequest(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// List returns the caller's active blocks
// GET /api/blocks
func (h *BlockHandler) List(c *gin.Context) {
	blocks, err := h.blockService.List(middleware.GetUserID(c))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, blocks)
}

// GetByID returns one of the caller's blocks
// GET /api/blocks/:id
func (h *BlockHandler) GetByID(c *gin.Context) {
	block, err := h.blockService.GetByID(middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		blockError(c, err)
		return
	}
	response.Success(c, block)
}

// Create schedules a new study block
// POST /api/blocks
func (h *BlockHandler) Create(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	block, err := h.blockService.Create(middleware.GetUserID(c), services.BlockInput{
		Title:     req.Title,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		blockError(c, err)
		return
	}

	response.Created(c, block)
}

// Update edits one of the caller's blocks
// PUT /api/blocks/:id
func (h *BlockHandler) Update(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	block, err := h.blockService.Update(middleware.GetUserID(c), c.Param("id"), services.BlockInput{
		Title:     req.Title,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		blockError(c, err)
		return
	}

	response.Success(c, block)
}

// Delete soft-deletes one of the caller's blocks
// DELETE /api/blocks/:id
func (h *BlockHandler) Delete(c *gin.Context) {
	if err := h.blockService.Delete(middleware.GetUserID(c), c.Param("id")); err != nil {
		blockError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

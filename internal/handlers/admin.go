package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/studyblocks/backend/internal/services"
	"github.com/studyblocks/backend/pkg/response"
)

// AdminHandler exposes operational controls over the reminder engine.
type AdminHandler struct {
	lockService *services.LockService
	scanner     *services.ReminderScanner
}

func NewAdminHandler(lockService *services.LockService, scanner *services.ReminderScanner) *AdminHandler {
	return &AdminHandler{lockService: lockService, scanner: scanner}
}

// ScannerStatus reports the scanner's current tick phase
// GET /api/admin/scanner
func (h *AdminHandler) ScannerStatus(c *gin.Context) {
	state := "idle"
	switch h.scanner.State() {
	case services.ScannerScanning:
		state = "scanning"
	case services.ScannerDispatching:
		state = "dispatching"
	}
	response.Success(c, gin.H{"state": state})
}

// ReapLocks removes expired job locks immediately instead of waiting for
// the periodic sweep
// POST /api/admin/locks/reap
func (h *AdminHandler) ReapLocks(c *gin.Context) {
	reaped, err := h.lockService.ReapExpired()
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"reaped": reaped})
}

package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/studyblocks/backend/internal/config"
	"github.com/studyblocks/backend/internal/middleware"
	"github.com/studyblocks/backend/internal/services"
	"github.com/studyblocks/backend/internal/utils"
	"github.com/studyblocks/backend/pkg/response"
)

type AuthHandler struct {
	userService *services.UserService
	jwtCfg      *config.JWTConfig
}

func NewAuthHandler(userService *services.UserService, jwtCfg *config.JWTConfig) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		jwtCfg:      jwtCfg,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=8"`
	Email    string `json:"email" binding:"required,email"`
	Nickname string `json:"nickname"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates a new user account
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.userService.Register(req.Username, req.Password, req.Email, req.Nickname)
	if err != nil {
		if err == services.ErrUsernameTaken {
			response.Error(c, response.NewConflict("username already taken"))
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Created(c, user)
}

// Login authenticates a user and issues a JWT
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.userService.Authenticate(req.Username, req.Password)
	if err != nil {
		response.Unauthorized(c, "invalid username or password")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, h.jwtCfg.ExpireHour)
	if err != nil {
		response.ServerError(c, "failed to issue token")
		return
	}

	response.Success(c, gin.H{
		"token": token,
		"user":  user,
	})
}

// Me returns the current logged-in user
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	contact, err := h.userService.FindContactByOwnerID(middleware.GetUserID(c))
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}

	response.Success(c, gin.H{
		"username": middleware.GetUsername(c),
		"email":    contact.Email,
		"nickname": contact.Name,
	})
}

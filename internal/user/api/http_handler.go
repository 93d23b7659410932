package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ridloal/retail-analytics-engine/internal/platform/auth"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/user/domain"
	"github.com/ridloal/retail-analytics-engine/internal/user/service"
)

type UserHandler struct {
	userService service.UserService
	tokens      *auth.TokenManager
}

func NewUserHandler(us service.UserService, tm *auth.TokenManager) *UserHandler {
	return &UserHandler{userService: us, tokens: tm}
}

func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", h.Register)
		authRoutes.POST("/login", h.Login)
		authRoutes.POST("/refresh", h.Refresh)
	}

	userRoutes := router.Group("/users", auth.RequireAuth(h.tokens))
	{
		userRoutes.GET("/me", h.Me)
		userRoutes.PUT("/me", h.UpdateMe)
	}

	adminRoutes := router.Group("/admin", auth.RequireAuth(h.tokens), auth.RequireRole(string(domain.RoleAdmin)))
	{
		adminRoutes.GET("/users", h.ListUsers)
		adminRoutes.PUT("/users/:id/role", h.UpdateRole)
	}
}

func clientInfo(c *gin.Context) domain.ClientInfo {
	return domain.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// respondError maps service errors to HTTP status codes.
func respondError(c *gin.Context, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Message, "detail": verr.Details})
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusLocked, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserAlreadyExists),
		errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrInactiveUser),
		errors.Is(err, service.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.Error(op+": service error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	pair, err := h.userService.Register(c.Request.Context(), req, clientInfo(c))
	if err != nil {
		respondError(c, "Register", err)
		return
	}

	c.JSON(http.StatusCreated, pair)
}

func (h *UserHandler) Login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	pair, err := h.userService.Login(c.Request.Context(), req, clientInfo(c))
	if err != nil {
		respondError(c, "Login", err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

func (h *UserHandler) Refresh(c *gin.Context) {
	var req domain.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	pair, err := h.userService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, "Refresh", err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

func subject(c *gin.Context) string {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		return ""
	}
	return claims.Subject
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.userService.Me(c.Request.Context(), subject(c))
	if err != nil {
		respondError(c, "Me", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), subject(c), req)
	if err != nil {
		respondError(c, "UpdateMe", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid skip parameter"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultListLimit)))
	if err != nil || limit < 1 || limit > service.MaxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	users, err := h.userService.ListUsers(c.Request.Context(), skip, limit)
	if err != nil {
		respondError(c, "ListUsers", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) UpdateRole(c *gin.Context) {
	var req domain.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	user, err := h.userService.UpdateRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		respondError(c, "UpdateRole", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

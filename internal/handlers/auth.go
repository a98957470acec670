package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	iauth "github.com/botecohq/boteco/internal/auth"
	"github.com/botecohq/boteco/internal/middleware"
	"github.com/botecohq/boteco/internal/models"
	"github.com/botecohq/boteco/internal/services"
	appErrors "github.com/botecohq/boteco/pkg/errors"
	"github.com/botecohq/boteco/pkg/response"
)

// AuthHandler manages the login flow and identity lookups.
type AuthHandler struct {
	db    *gorm.DB
	jwt   *iauth.JWTService
	audit *services.AuditService
}

func NewAuthHandler(db *gorm.DB, jwt *iauth.JWTService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{db: db, jwt: jwt, audit: audit}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	err := h.db.WithContext(requestContext(c)).Take(&user, "email = ?", email).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, appErrors.ErrInternalServer)
			return
		}
		h.auditLogin(c, nil, "failure")
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}

	if !user.Active || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.auditLogin(c, &user.ID, "failure")
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:       user.ID,
		Email:        user.Email,
		IsSuperadmin: user.IsSuperadmin,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	h.auditLogin(c, &user.ID, "success")

	response.Success(c, http.StatusOK, gin.H{
		"access_token": token,
		"user": gin.H{
			"id":            user.ID,
			"email":         user.Email,
			"name":          user.Name,
			"is_superadmin": user.IsSuperadmin,
		},
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)

	var user models.User
	err := h.db.WithContext(requestContext(c)).
		Preload("Restaurants").
		Take(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, user)
}

func (h *AuthHandler) auditLogin(c *gin.Context, userID *string, result string) {
	if h.audit == nil {
		return
	}
	_ = h.audit.Log(requestContext(c), services.AuditEntry{
		UserID:    userID,
		Action:    "auth.login",
		Result:    result,
		IPAddress: c.ClientIP(),
	})
}

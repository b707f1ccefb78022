// api/handlers/auth_handlers.go
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"vsltrack/api/models"
	"vsltrack/api/store"
	"vsltrack/api/utils"
)

type AuthHandlers struct {
	UserStore *store.UserStore
	JWT       *utils.JWTManager
}

func NewAuthHandlers(userStore *store.UserStore, jwtMgr *utils.JWTManager) *AuthHandlers {
	return &AuthHandlers{UserStore: userStore, JWT: jwtMgr}
}

// Signup registers a dashboard admin. The route sits behind the API key so
// random visitors cannot create accounts.
func (h *AuthHandlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.WithError(err).Error("failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	admin, err := h.UserStore.CreateAdmin(c.Request.Context(), req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrAdminExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
			return
		}
		log.WithError(err).WithField("email", req.Email).Error("failed to create admin")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user_email": admin.Email})
}

// Login authenticates a dashboard admin and issues the JWT cookie.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	admin, err := h.UserStore.GetAdminByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrAdminNotFound) {
			log.WithError(err).WithField("email", req.Email).Error("login lookup failed")
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(admin.HashedPassword, []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := h.JWT.GenerateToken(admin)
	if err != nil {
		log.WithError(err).WithField("user_id", admin.ID).Error("failed to generate JWT")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetCookie(
		"jwt_token",
		tokenString,
		int(h.JWT.TTL()/time.Second),
		"/",
		"",
		false,
		true,
	)

	log.WithField("email", admin.Email).Info("admin logged in")
	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"user_email": admin.Email,
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(
		"jwt_token",
		"",
		-1,
		"/",
		"",
		false,
		true,
	)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

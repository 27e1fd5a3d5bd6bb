package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"storefront/database"
	"storefront/middleware"
	"storefront/models"
	"storefront/services"
)

const tokenTTL = 24 * time.Hour

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type AuthController struct {
	users     UserStore
	blacklist middleware.Blacklist
	secret    []byte
	now       func() time.Time
}

func NewAuthController(users UserStore, blacklist middleware.Blacklist, secret []byte) *AuthController {
	return &AuthController{users: users, blacklist: blacklist, secret: secret, now: time.Now}
}

func userResponse(user *models.User) gin.H {
	return gin.H{
		"id":    user.ID.Hex(),
		"name":  user.Name,
		"email": user.Email,
		"role":  user.Role,
	}
}

// Register always creates customers; admins are provisioned in the store.
func (ac *AuthController) Register(c *gin.Context) {
	var input struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, badRequest("InvalidInput", "Invalid input"))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, err)
		return
	}

	user := &models.User{
		Name:      input.Name,
		Email:     strings.ToLower(input.Email),
		Password:  string(hashed),
		Role:      models.RoleCustomer,
		CreatedAt: ac.now().UTC(),
	}

	if err := ac.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "EmailTaken", "message": "Email already registered"})
			return
		}
		respondError(c, err)
		return
	}

	token, _, err := middleware.SignToken(ac.secret, user, tokenTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": userResponse(user), "token": token})
}

func (ac *AuthController) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, badRequest("InvalidInput", "Invalid input"))
		return
	}

	invalid := func() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": services.CodeUnauthenticated, "message": "Invalid email or password"})
	}

	user, err := ac.users.FindByEmail(c.Request.Context(), strings.ToLower(input.Email))
	if errors.Is(err, database.ErrNotFound) {
		invalid()
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		invalid()
		return
	}

	token, _, err := middleware.SignToken(ac.secret, user, tokenTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userResponse(user), "token": token})
}

// Logout revokes the presented token until it would have expired anyway.
func (ac *AuthController) Logout(c *gin.Context) {
	tokenString := middleware.BearerToken(c)
	if tokenString == "" {
		respondError(c, badRequest("InvalidInput", "Token required"))
		return
	}

	claims, err := middleware.ParseToken(ac.secret, tokenString)
	if err != nil {
		respondError(c, services.ErrUnauthenticated)
		return
	}

	expiresAt := ac.now().Add(tokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	if err := ac.blacklist.Add(c.Request.Context(), tokenString, expiresAt); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

package account

import (
	"errors"
	"net/http"

	"guestbook/internal/apperr"

	"github.com/gin-gonic/gin"
)

type AccountController struct {
	accountService AccountServiceInterface
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func NewAccountController(accountService AccountServiceInterface) *AccountController {
	return &AccountController{
		accountService: accountService,
	}
}

// RegisterRoutes mounts register and login on rg. Extra middleware (the
// auth rate limiter) runs before each handler.
func (a *AccountController) RegisterRoutes(rg *gin.RouterGroup, middleware ...gin.HandlerFunc) {
	auth := rg.Group("", middleware...)
	{
		auth.POST("/register", a.Register)
		auth.POST("/login", a.Login)
	}
}

// Register handles account registration
func (a *AccountController) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	if err := a.accountService.Register(c.Request.Context(), req.Username, req.Password); err != nil {
		message := "Failed to create account"
		switch {
		case errors.Is(err, apperr.ErrConflict):
			message = "Username already exists"
		case errors.Is(err, apperr.ErrBadRequest):
			message = err.Error()
		case errors.Is(err, apperr.ErrUnavailable):
			message = "Guestbook storage is unavailable"
		}
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": message})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// Login checks credentials and echoes the username back as the caller's
// identity.
func (a *AccountController) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	account, err := a.accountService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Guestbook storage is unavailable"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"username": account.Username})
}

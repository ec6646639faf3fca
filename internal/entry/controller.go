package entry

import (
	"errors"
	"net/http"

	"guestbook/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type EntryController struct {
	service EntryServiceInterface
}

type CreateEntryRequest struct {
	Name           string `json:"name" binding:"required"`
	Message        string `json:"message" binding:"required"`
	Category       string `json:"category" binding:"omitempty,oneof=freedom quest bounty oracle"`
	AuthorUsername string `json:"author_username" binding:"required"`
}

type UpdateMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// OwnerQuery carries the ownership credential of PUT and DELETE. Pin is only
// read to reject clients still using PIN ownership.
type OwnerQuery struct {
	Username string `form:"username"`
	Pin      string `form:"pin"`
}

const pinUnsupportedMsg = "pin ownership is no longer supported; pass username"

func NewEntryController(service EntryServiceInterface) *EntryController {
	return &EntryController{
		service: service,
	}
}

func (ec *EntryController) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", ec.ListEntries)
	rg.POST("", ec.CreateEntry)
	rg.PUT("/:id", ec.UpdateEntry)
	rg.DELETE("/:id", ec.DeleteEntry)
}

// ListEntries returns every entry, newest first
func (ec *EntryController) ListEntries(c *gin.Context) {
	entries, err := ec.service.ListEntries(c.Request.Context())
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, entries)
}

// CreateEntry handles entry creation
func (ec *EntryController) CreateEntry(c *gin.Context) {
	var req CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry := &Entry{
		Name:           req.Name,
		Message:        req.Message,
		Category:       req.Category,
		AuthorUsername: req.AuthorUsername,
	}

	if err := ec.service.CreateEntry(c.Request.Context(), entry); err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// UpdateEntry replaces the message of an entry owned by ?username=
func (ec *EntryController) UpdateEntry(c *gin.Context) {
	id, username, ok := ownedTarget(c)
	if !ok {
		return
	}

	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := ec.service.UpdateMessage(c.Request.Context(), id, username, req.Message)
	if err != nil {
		respondError(c, err, "Not the author - Update denied")
		return
	}

	c.JSON(http.StatusOK, entry)
}

// DeleteEntry removes an entry owned by ?username=
func (ec *EntryController) DeleteEntry(c *gin.Context) {
	id, username, ok := ownedTarget(c)
	if !ok {
		return
	}

	if err := ec.service.DeleteEntry(c.Request.Context(), id, username); err != nil {
		respondError(c, err, "Not the author - Delete denied")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ownedTarget reads the entry id path parameter and the owner query. It
// writes a 400 response and returns false when either is unusable.
func ownedTarget(c *gin.Context) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry id"})
		return uuid.Nil, "", false
	}

	var owner OwnerQuery
	if err := c.ShouldBindQuery(&owner); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, "", false
	}

	if owner.Username == "" {
		msg := "username query parameter is required"
		if owner.Pin != "" {
			msg = pinUnsupportedMsg
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return uuid.Nil, "", false
	}

	return id, owner.Username, true
}

func respondError(c *gin.Context, err error, unauthorizedMsg string) {
	status := apperr.HTTPStatus(err)

	var msg string
	switch {
	case errors.Is(err, apperr.ErrBadRequest):
		msg = err.Error()
	case errors.Is(err, apperr.ErrUnauthorized):
		msg = unauthorizedMsg
	case errors.Is(err, apperr.ErrUnavailable):
		msg = "Guestbook storage is unavailable"
	default:
		msg = "Internal server error"
	}

	c.JSON(status, gin.H{"error": msg})
}

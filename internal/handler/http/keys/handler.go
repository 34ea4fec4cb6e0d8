package keys

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"securedocs-backend/internal/domain"
	"securedocs-backend/internal/service/epoch"
	"securedocs-backend/pkg/response"
)

// IdentityKeyStore persists users' public identity keys
type IdentityKeyStore interface {
	SaveIdentityKey(ctx context.Context, key *domain.IdentityKey) error
	GetIdentityKey(ctx context.Context, userID uuid.UUID) (*domain.IdentityKey, error)
}

// Handler handles identity key and key record HTTP requests
type Handler struct {
	identityKeys IdentityKeyStore
	epochService *epoch.Service
}

// NewHandler creates a new keys handler
func NewHandler(identityKeys IdentityKeyStore, epochService *epoch.Service) *Handler {
	return &Handler{
		identityKeys: identityKeys,
		epochService: epochService,
	}
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}

// UploadIdentityKey stores the caller's public identity keys
// POST /v1/keys/identity
func (h *Handler) UploadIdentityKey(c *gin.Context) {
	var req domain.KeysUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	key := &domain.IdentityKey{
		UserID:        userID,
		SigningKey:    req.SigningKey,
		EncryptionKey: req.EncryptionKey,
	}
	if err := h.identityKeys.SaveIdentityKey(c.Request.Context(), key); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, key)
}

// GetIdentityKey returns another user's public identity keys. Members need
// them to seal root keys during sharing and rotation.
// GET /v1/keys/identity/:user_id
func (h *Handler) GetIdentityKey(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	key, err := h.identityKeys.GetIdentityKey(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "Identity key not found")
		return
	}

	response.Success(c, http.StatusOK, key)
}

// GetKeyRecords returns the caller's key records for a document, one per
// epoch of membership
// GET /v1/documents/:document_id/keys
func (h *Handler) GetKeyRecords(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	records, err := h.epochService.GetKeyRecords(c.Request.Context(), documentID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, records)
}

// RotateRequest carries a full record set for the next epoch
type RotateRequest struct {
	Records []*domain.DocumentKeyRecord `json:"records" binding:"required,min=1"`
}

// Rotate accepts a proactive root key rotation from the document owner
// POST /v1/documents/:document_id/keys/rotate
func (h *Handler) Rotate(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	var req RotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.epochService.StoreRotation(c.Request.Context(), documentID, userID, req.Records); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Root key rotated"})
}

package document

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"securedocs-backend/internal/domain"
	"securedocs-backend/internal/service/document"
	"securedocs-backend/internal/service/epoch"
	"securedocs-backend/pkg/pagination"
	"securedocs-backend/pkg/response"
)

// Handler handles document HTTP requests
type Handler struct {
	documentService *document.Service
	epochService    *epoch.Service
}

// NewHandler creates a new document handler
func NewHandler(documentService *document.Service, epochService *epoch.Service) *Handler {
	return &Handler{
		documentService: documentService,
		epochService:    epochService,
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

// CreateRequest represents a document creation request. The client generates
// the document id and signs the epoch-0 key records over it.
type CreateRequest struct {
	DocumentID uuid.UUID                   `json:"document_id" binding:"required"`
	Title      string                      `json:"title" binding:"required"`
	KeyRecords []*domain.DocumentKeyRecord `json:"key_records" binding:"required,min=1"`
}

// Create handles document creation
// POST /v1/documents
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	doc, err := h.documentService.CreateDocument(c.Request.Context(), &document.CreateDocumentInput{
		DocumentID: req.DocumentID,
		OwnerID:    userID,
		Title:      req.Title,
		KeyRecords: req.KeyRecords,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, doc)
}

// Get retrieves a document
// GET /v1/documents/:document_id
func (h *Handler) Get(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	doc, err := h.documentService.GetDocument(c.Request.Context(), documentID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, doc)
}

// List returns the caller's documents
// GET /v1/documents
func (h *Handler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params, err := pagination.ParseParams(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	docs, meta, err := h.documentService.ListDocuments(c.Request.Context(), userID, params)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.SuccessPaginated(c, docs, meta)
}

// ShareRequest represents a share request
type ShareRequest struct {
	UserID    uuid.UUID                 `json:"user_id" binding:"required"`
	Role      string                    `json:"role" binding:"required"`
	KeyRecord *domain.DocumentKeyRecord `json:"key_record" binding:"required"`
}

// Share adds a member to a document
// POST /v1/documents/:document_id/members
func (h *Handler) Share(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	var req ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	err = h.documentService.ShareDocument(c.Request.Context(), &document.ShareInput{
		DocumentID: documentID,
		OwnerID:    userID,
		UserID:     req.UserID,
		Role:       req.Role,
		KeyRecord:  req.KeyRecord,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"message": "Document shared"})
}

// RevokeRequest carries the rotation record set accompanying a revocation
type RevokeRequest struct {
	RotationRecords []*domain.DocumentKeyRecord `json:"rotation_records" binding:"required,min=1"`
}

// Revoke removes a member and rotates the root key
// DELETE /v1/documents/:document_id/members/:user_id
func (h *Handler) Revoke(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}
	memberID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	err = h.documentService.RevokeAccess(c.Request.Context(), &document.RevokeInput{
		DocumentID:      documentID,
		OwnerID:         userID,
		UserID:          memberID,
		RotationRecords: req.RotationRecords,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Access revoked"})
}

// Members lists a document's members
// GET /v1/documents/:document_id/members
func (h *Handler) Members(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	members, err := h.documentService.GetMembers(c.Request.Context(), documentID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, members)
}

// Delete removes a document
// DELETE /v1/documents/:document_id
func (h *Handler) Delete(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.documentService.DeleteDocument(c.Request.Context(), documentID, userID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Document deleted"})
}

package archive

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"securedocs-backend/internal/service/archive"
	blockservice "securedocs-backend/internal/service/block"
	"securedocs-backend/pkg/constants"
	"securedocs-backend/pkg/response"
)

// Handler handles snapshot archival HTTP requests
type Handler struct {
	archiveService *archive.Service
	documents      blockservice.DocumentReader
}

// NewHandler creates a new archive handler
func NewHandler(archiveService *archive.Service, documents blockservice.DocumentReader) *Handler {
	return &Handler{
		archiveService: archiveService,
		documents:      documents,
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

func (h *Handler) requireMember(c *gin.Context, documentID, userID uuid.UUID) bool {
	member, err := h.documents.GetMember(c.Request.Context(), documentID, userID)
	if err != nil || member == nil {
		response.Forbidden(c, "User is not a member of this document")
		return false
	}
	return true
}

// Take archives the current block heads of a document
// POST /v1/documents/:document_id/snapshots
func (h *Handler) Take(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if !h.requireMember(c, documentID, userID) {
		return
	}

	doc, err := h.documents.GetDocument(c.Request.Context(), documentID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	// Snapshots read every block head; give them more room than a normal request
	ctx, cancel := context.WithTimeout(c.Request.Context(), constants.LongTimeout)
	defer cancel()

	name, err := h.archiveService.TakeSnapshot(ctx, doc)
	if err != nil {
		response.AppError(c, err)
		return
	}

	// API names are relative to the document prefix
	response.Success(c, http.StatusCreated, gin.H{"name": strings.TrimPrefix(name, documentID.String()+"/")})
}

// List returns the snapshot object names for a document
// GET /v1/documents/:document_id/snapshots
func (h *Handler) List(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if !h.requireMember(c, documentID, userID) {
		return
	}

	keys, err := h.archiveService.ListSnapshots(c.Request.Context(), documentID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, documentID.String()+"/"))
	}

	response.Success(c, http.StatusOK, names)
}

// Get loads one archived snapshot by its name within the document's prefix.
// The name is a single path segment, so it cannot escape into another
// document's objects.
// GET /v1/documents/:document_id/snapshots/:name
func (h *Handler) Get(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	name := c.Param("name")
	if name == "" || strings.Contains(name, "/") {
		response.ValidationError(c, "Invalid snapshot name")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if !h.requireMember(c, documentID, userID) {
		return
	}

	snapshot, err := h.archiveService.GetSnapshot(c.Request.Context(), documentID.String()+"/"+name)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

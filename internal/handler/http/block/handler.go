package block

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"securedocs-backend/internal/domain"
	blockservice "securedocs-backend/internal/service/block"
	"securedocs-backend/internal/service/editing"
	"securedocs-backend/pkg/constants"
	"securedocs-backend/pkg/response"
)

// Handler handles block version and edit lock HTTP requests
type Handler struct {
	blockService *blockservice.Service
	editService  *editing.Service
	documents    blockservice.DocumentReader
}

// NewHandler creates a new block handler
func NewHandler(blockService *blockservice.Service, editService *editing.Service, documents blockservice.DocumentReader) *Handler {
	return &Handler{
		blockService: blockService,
		editService:  editService,
		documents:    documents,
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

// SubmitRequest represents a block version submission. All cipher fields are
// base64; the server stores them opaque.
type SubmitRequest struct {
	BlockID    string `json:"block_id" binding:"required"`
	Index      int    `json:"index"`
	Version    int64  `json:"version" binding:"required,min=1"`
	Epoch      int64  `json:"epoch" binding:"min=0"`
	CipherText string `json:"cipher_text" binding:"required"`
	IV         string `json:"iv" binding:"required"`
	PrevHash   string `json:"prev_hash" binding:"required"`
	Hash       string `json:"hash" binding:"required"`
}

// Submit appends a new version to a block's history
// POST /v1/documents/:document_id/blocks
func (h *Handler) Submit(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	version := &domain.BlockVersion{
		BlockID:    req.BlockID,
		DocumentID: documentID,
		AuthorID:   userID,
		Index:      req.Index,
		Version:    req.Version,
		Epoch:      req.Epoch,
		CipherText: req.CipherText,
		IV:         req.IV,
		PrevHash:   req.PrevHash,
		Hash:       req.Hash,
	}

	saved, err := h.blockService.SubmitVersion(c.Request.Context(), userID, version)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, saved)
}

// List returns the latest version of every block in a document
// GET /v1/documents/:document_id/blocks
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

	versions, err := h.blockService.GetBlocks(c.Request.Context(), documentID, userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, versions)
}

// History returns a block's versions after since_version, ascending
// GET /v1/documents/:document_id/blocks/:block_id/history
func (h *Handler) History(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}
	blockID := c.Param("block_id")

	sinceVersion := int64(0)
	if since := c.Query("since_version"); since != "" {
		sinceVersion, err = strconv.ParseInt(since, 10, 64)
		if err != nil || sinceVersion < 0 {
			response.ValidationError(c, "Invalid since_version")
			return
		}
	}

	limit := constants.MaxBatchVersions
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			response.ValidationError(c, "Invalid limit")
			return
		}
		if limit > constants.MaxBatchVersions {
			limit = constants.MaxBatchVersions
		}
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	versions, err := h.blockService.GetHistory(c.Request.Context(), documentID, userID, blockID, sinceVersion, limit)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, versions)
}

// Latest returns the head of a block's history
// GET /v1/documents/:document_id/blocks/:block_id
func (h *Handler) Latest(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	head, err := h.blockService.GetLatestVersion(c.Request.Context(), documentID, userID, c.Param("block_id"))
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, head)
}

// Delete removes a block and its history
// DELETE /v1/documents/:document_id/blocks/:block_id
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

	if err := h.blockService.DeleteBlock(c.Request.Context(), documentID, userID, c.Param("block_id")); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Block deleted"})
}

// AcquireLock takes or refreshes the edit lock on a block
// POST /v1/documents/:document_id/blocks/:block_id/lock
func (h *Handler) AcquireLock(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	status, err := h.editService.Acquire(c.Request.Context(), c.Param("block_id"), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// ReleaseLock drops the edit lock on a block
// DELETE /v1/documents/:document_id/blocks/:block_id/lock
func (h *Handler) ReleaseLock(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	doc, err := h.documents.GetDocument(c.Request.Context(), documentID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	if err := h.editService.Release(c.Request.Context(), c.Param("block_id"), userID, doc.OwnerID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Lock released"})
}

// LockStatus reports who holds the edit lock on a block
// GET /v1/documents/:document_id/blocks/:block_id/lock
func (h *Handler) LockStatus(c *gin.Context) {
	status, err := h.editService.Check(c.Request.Context(), c.Param("block_id"))
	if err != nil {
		response.AppError(c, err)
		return
	}
	if status == nil {
		response.Success(c, http.StatusOK, gin.H{"locked": false})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"locked": true, "status": status})
}

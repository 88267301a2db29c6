package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequirementReader fetches a buyer requirement from the marketplace backend.
type RequirementReader interface {
	GetRequirement(ctx context.Context, id string) (map[string]any, error)
}

// RequirementHandler proxies requirement reads.
type RequirementHandler struct {
	reader RequirementReader
}

// NewRequirementHandler builds a RequirementHandler.
func NewRequirementHandler(reader RequirementReader) *RequirementHandler {
	return &RequirementHandler{reader: reader}
}

// GetRequirement returns the requirement behind a notification.
func (h *RequirementHandler) GetRequirement(c *gin.Context) {
	requirement, err := h.reader.GetRequirement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to load requirement")
		return
	}
	c.JSON(http.StatusOK, requirement)
}

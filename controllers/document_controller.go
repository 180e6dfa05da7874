package controllers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/services"
	"go.uber.org/zap"
)

type DocumentGenerator interface {
	Generate(ctx context.Context, req services.GenerateRequest) (*services.GeneratedDocument, error)
}

type DocumentController struct {
	documents DocumentGenerator
	logger    *zap.Logger
}

func NewDocumentController(documents DocumentGenerator, logger *zap.Logger) *DocumentController {
	return &DocumentController{documents: documents, logger: logger}
}

// GeneratePDF streams the trust deed back as an attachment.
func (dc *DocumentController) GeneratePDF(c *gin.Context) {
	var req services.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, dc.logger, apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}

	doc, err := dc.documents.Generate(c.Request.Context(), req)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	if doc.DownloadURL != "" {
		c.Header("X-Document-URL", doc.DownloadURL)
	}
	c.Data(http.StatusOK, "application/pdf", doc.Content)
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/longle289/TrustAustralia/catalog"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/common/logger"
	"github.com/longle289/TrustAustralia/documents"
	"github.com/longle289/TrustAustralia/forms"
	"github.com/longle289/TrustAustralia/models"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
	"github.com/longle289/TrustAustralia/repository"
	"go.uber.org/zap"
)

const downloadURLExpiry = 24 * time.Hour

type GenerateRequest struct {
	Type        string          `json:"type"`
	ProductType string          `json:"productType"`
	FormData    json.RawMessage `json:"formData"`
	SessionID   string          `json:"sessionId"`
}

type GeneratedDocument struct {
	Filename    string
	Content     []byte
	DownloadURL string
}

// DocumentStore is where deeds of paid orders are archived (S3 in production).
type DocumentStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type DocumentService struct {
	renderer  documents.Renderer
	validator *forms.FormValidator
	orders    repository.OrderRepository
	store     DocumentStore
	metrics   MetricsRecorder
	logger    *zap.Logger
}

func NewDocumentService(
	renderer documents.Renderer,
	validator *forms.FormValidator,
	orders repository.OrderRepository,
	store DocumentStore,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		renderer:  renderer,
		validator: validator,
		orders:    orders,
		store:     store,
		metrics:   metricsOrNop(metrics),
		logger:    logger,
	}
}

// Generate renders the trust deed for a validated form. When the request
// names the session of a completed order the deed is also archived and the
// order is marked as having its PDF.
func (s *DocumentService) Generate(ctx context.Context, req GenerateRequest) (*GeneratedDocument, error) {
	log := logger.For(ctx, s.logger)

	key := req.ProductType
	if key == "" {
		key = req.Type
	}
	product, ok := catalog.Lookup(key)
	if !ok {
		return nil, apperrors.ErrInvalidProduct
	}
	if !documents.Supports(product.Type) {
		return nil, apperrors.ErrManualProcessing
	}

	form, err := s.validator.Decode(product.Type, req.FormData)
	if err != nil {
		var verr *forms.ValidationError
		if errors.As(err, &verr) {
			return nil, apperrors.Wrap(apperrors.ErrInvalidFormData, err)
		}
		return nil, apperrors.Wrap(apperrors.ErrDocumentFailed, err)
	}

	content, err := s.renderer.Render(product.Type, form)
	if err != nil {
		log.Error("PDF generation failed", zap.String("product", product.Key), zap.Error(err))
		return nil, apperrors.Wrap(apperrors.ErrDocumentFailed, err)
	}
	recordCount(s.metrics, awspkg.MetricDocumentsGenerated, map[string]string{"ProductType": string(product.Type)})

	doc := &GeneratedDocument{
		Filename: documents.Filename(forms.EntityLabel(product.Type, req.FormData)),
		Content:  content,
	}
	if sid := strings.TrimSpace(req.SessionID); sid != "" {
		s.archive(ctx, sid, doc, log.With(zap.String("session_id", sid)))
	}
	return doc, nil
}

func (s *DocumentService) archive(ctx context.Context, sessionID string, doc *GeneratedDocument, log *zap.Logger) {
	order, err := s.orders.FindBySessionID(ctx, sessionID)
	if err != nil {
		log.Warn("no order for document session", zap.Error(err))
		return
	}
	if order.Status != models.StatusCompleted {
		log.Warn("document generated for unpaid order", zap.String("status", string(order.Status)))
		return
	}

	if s.store != nil {
		key := fmt.Sprintf("orders/%s/%s", order.ID, doc.Filename)
		if err := s.store.Put(ctx, key, doc.Content, "application/pdf"); err != nil {
			log.Error("failed to archive document", zap.Error(err))
		} else if url, err := s.store.PresignGet(ctx, key, downloadURLExpiry); err != nil {
			log.Warn("failed to presign document url", zap.Error(err))
		} else {
			doc.DownloadURL = url
		}
	}

	if err := s.orders.MarkPDFGenerated(ctx, order.ID); err != nil {
		log.Error("failed to mark pdf generated", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

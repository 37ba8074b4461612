package reports

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/reports/export"
)

// Handler handles HTTP requests for exports and certificates
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers export and certificate routes. They share the
// /transactions and /credits prefixes with the registry handler.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/transactions/export", h.exportTransactions)
	router.GET("/projects/export", h.exportProjects)
	router.GET("/credits/:id/certificate", h.getCertificate)
	router.POST("/certificates/verify", h.verifyCertificate)
}

// =====================================================
// Export Endpoints
// =====================================================

// exportTransactions handles GET /api/v1/transactions/export
func (h *Handler) exportTransactions(c *gin.Context) {
	format, ok := h.exportFormat(c)
	if !ok {
		return
	}

	table, err := h.service.TransactionLedger(c.Request.Context(), registry.TransactionFilter{
		UserID:   c.Query("user_id"),
		CreditID: c.Query("credit_id"),
		Type:     registry.TransactionType(c.Query("type")),
	})
	if err != nil {
		registry.RespondError(c, h.logger, err)
		return
	}
	h.writeTable(c, "transactions", format, table)
}

// exportProjects handles GET /api/v1/projects/export
func (h *Handler) exportProjects(c *gin.Context) {
	format, ok := h.exportFormat(c)
	if !ok {
		return
	}

	table, err := h.service.ProjectRegister(c.Request.Context(), registry.ProjectFilter{
		DeveloperID: c.Query("developer_id"),
		Status:      registry.ProjectStatus(c.Query("status")),
		ProjectType: registry.ProjectType(c.Query("project_type")),
	})
	if err != nil {
		registry.RespondError(c, h.logger, err)
		return
	}
	h.writeTable(c, "projects", format, table)
}

func (h *Handler) exportFormat(c *gin.Context) (export.Format, bool) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		registry.RespondError(c, h.logger, registry.FieldInvalid("format", "must be one of csv, xlsx, pdf"))
		return "", false
	}
	return format, true
}

func (h *Handler) writeTable(c *gin.Context, name string, format export.Format, table export.Table) {
	var buf bytes.Buffer
	if err := export.Write(&buf, format, table); err != nil {
		h.logger.Error("Failed to render export",
			zap.Error(err),
			zap.String("export", name),
			zap.String("format", string(format)),
		)
		registry.RespondError(c, h.logger, fmt.Errorf("render %s export: %w", name, err))
		return
	}

	filename := fmt.Sprintf("%s-%s.%s", name, time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// =====================================================
// Certificate Endpoints
// =====================================================

// getCertificate handles GET /api/v1/credits/:id/certificate
// ?format=json returns the sealed record instead of the PDF.
func (h *Handler) getCertificate(c *gin.Context) {
	record, err := h.service.RetirementCertificate(c.Request.Context(), c.Param("id"))
	if err != nil {
		registry.RespondError(c, h.logger, err)
		return
	}

	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, record)
		return
	}

	doc, err := h.service.RenderCertificate(c.Request.Context(), record)
	if err != nil {
		registry.RespondError(c, h.logger, fmt.Errorf("render certificate: %w", err))
		return
	}

	filename := fmt.Sprintf("certificate-%s.pdf", record.Certificate.TokenID)
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))
	http.ServeContent(c.Writer, c.Request, filename, record.Certificate.RetiredAt, doc)
}

// verifyCertificate handles POST /api/v1/certificates/verify
func (h *Handler) verifyCertificate(c *gin.Context) {
	var record CertificateRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		registry.RespondError(c, h.logger, registry.FieldInvalid("body", err.Error()))
		return
	}

	err := h.service.VerifyCertificate(record)
	var domainErr *registry.Error
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"valid": true, "signer_address": record.Signature.SignerAddress})
	case errors.As(err, &domainErr):
		registry.RespondError(c, h.logger, err)
	default:
		// tampered content, foreign signer or malformed signature
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": err.Error()})
	}
}

package registry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for registry operations
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a new registry handler
func NewHandler(service Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers registry routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	projects := router.Group("/projects")
	{
		projects.POST("", h.registerProject)
		projects.GET("", h.listProjects)
		projects.GET("/markers", h.projectMarkers)
		projects.GET("/:id", h.getProject)
		projects.PATCH("/:id/status", h.verifyProject)
		projects.POST("/:id/credits", h.mintCredits)
	}

	credits := router.Group("/credits")
	{
		credits.GET("", h.listCredits)
		credits.GET("/available", h.listAvailableCredits)
		credits.GET("/:id", h.getCredit)
		credits.POST("/:id/purchase", h.purchaseCredit)
		credits.POST("/:id/retire", h.retireCredit)
	}

	transactions := router.Group("/transactions")
	{
		transactions.GET("", h.listTransactions)
		transactions.GET("/:id", h.getTransaction)
	}

	sensors := router.Group("/sensor-data")
	{
		sensors.POST("", h.recordSensorReading)
		sensors.GET("/:projectId", h.listSensorReadings)
		sensors.GET("/:projectId/:sensorType/latest", h.latestSensorReading)
	}

	users := router.Group("/users")
	{
		users.POST("", h.registerUser)
		users.GET("/:id", h.getUser)
	}

	router.POST("/web3/connect", h.connectWallet)
}

// RespondError writes err as the JSON error body with the status its code maps to
func RespondError(c *gin.Context, logger *zap.Logger, err error) {
	var e *Error
	if errors.As(err, &e) {
		c.JSON(e.Code.HTTPStatus(), e)
		return
	}
	logger.Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": CodeUnknown})
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, &Error{
			Code:    CodeValidation,
			Message: "invalid request body",
			Fields:  []FieldError{{Field: "body", Message: err.Error()}},
		})
		return false
	}
	return true
}

// =====================================================
// Project Endpoints
// =====================================================

// registerProject handles POST /api/v1/projects
func (h *Handler) registerProject(c *gin.Context) {
	var req RegisterProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := h.service.RegisterProject(c.Request.Context(), &req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

// listProjects handles GET /api/v1/projects
func (h *Handler) listProjects(c *gin.Context) {
	filter := ProjectFilter{
		DeveloperID: c.Query("developer_id"),
		Status:      ProjectStatus(c.Query("status")),
		ProjectType: ProjectType(c.Query("project_type")),
	}

	if c.Query("radius_km") != "" {
		near, err := parseRadiusFilter(c)
		if err != nil {
			RespondError(c, h.logger, err)
			return
		}
		filter.Near = near
	}

	projects, err := h.service.ListProjects(c.Request.Context(), filter)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, projects)
}

func parseRadiusFilter(c *gin.Context) (*RadiusFilter, error) {
	var near RadiusFilter
	for _, q := range []struct {
		name string
		dst  *float64
	}{
		{"lat", &near.Latitude},
		{"lng", &near.Longitude},
		{"radius_km", &near.RadiusKm},
	} {
		v, err := strconv.ParseFloat(c.Query(q.name), 64)
		if err != nil {
			return nil, FieldInvalid(q.name, "must be a number")
		}
		*q.dst = v
	}
	return &near, nil
}

// projectMarkers handles GET /api/v1/projects/markers
func (h *Handler) projectMarkers(c *gin.Context) {
	markers, err := h.service.ProjectMarkers(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, markers)
}

// getProject handles GET /api/v1/projects/:id
func (h *Handler) getProject(c *gin.Context) {
	project, err := h.service.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// verifyProject handles PATCH /api/v1/projects/:id/status
func (h *Handler) verifyProject(c *gin.Context) {
	var req VerifyProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := h.service.VerifyProject(c.Request.Context(), c.Param("id"), req.ResolveDecision())
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// mintCredits handles POST /api/v1/projects/:id/credits
func (h *Handler) mintCredits(c *gin.Context) {
	var req MintCreditsRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ProjectID = c.Param("id")

	result, err := h.service.MintCredits(c.Request.Context(), &req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// =====================================================
// Credit Endpoints
// =====================================================

// listCredits handles GET /api/v1/credits
func (h *Handler) listCredits(c *gin.Context) {
	h.respondCredits(c, CreditFilter{
		OwnerID:   c.Query("owner_id"),
		ProjectID: c.Query("project_id"),
		Status:    CreditStatus(c.Query("status")),
	})
}

// listAvailableCredits handles GET /api/v1/credits/available
func (h *Handler) listAvailableCredits(c *gin.Context) {
	h.respondCredits(c, CreditFilter{
		ProjectID: c.Query("project_id"),
		Status:    CreditStatusAvailable,
	})
}

func (h *Handler) respondCredits(c *gin.Context, filter CreditFilter) {
	credits, err := h.service.ListCredits(c.Request.Context(), filter)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, credits)
}

// getCredit handles GET /api/v1/credits/:id
func (h *Handler) getCredit(c *gin.Context) {
	credit, err := h.service.GetCredit(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, credit)
}

// purchaseCredit handles POST /api/v1/credits/:id/purchase
func (h *Handler) purchaseCredit(c *gin.Context) {
	var req PurchaseCreditRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.PurchaseCredit(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// retireCredit handles POST /api/v1/credits/:id/retire
func (h *Handler) retireCredit(c *gin.Context) {
	var req RetireCreditRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.RetireCredit(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// =====================================================
// Transaction Endpoints
// =====================================================

// listTransactions handles GET /api/v1/transactions
func (h *Handler) listTransactions(c *gin.Context) {
	txs, err := h.service.ListTransactions(c.Request.Context(), TransactionFilter{
		UserID:   c.Query("user_id"),
		CreditID: c.Query("credit_id"),
		Type:     TransactionType(c.Query("type")),
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, txs)
}

// getTransaction handles GET /api/v1/transactions/:id
func (h *Handler) getTransaction(c *gin.Context) {
	tx, err := h.service.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// =====================================================
// Sensor Endpoints
// =====================================================

// recordSensorReading handles POST /api/v1/sensor-data
func (h *Handler) recordSensorReading(c *gin.Context) {
	var req RecordSensorReadingRequest
	if !bindJSON(c, &req) {
		return
	}

	reading, err := h.service.RecordSensorReading(c.Request.Context(), &req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, reading)
}

// listSensorReadings handles GET /api/v1/sensor-data/:projectId
func (h *Handler) listSensorReadings(c *gin.Context) {
	readings, err := h.service.ListSensorReadings(c.Request.Context(), c.Param("projectId"), SensorType(c.Query("sensor_type")))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, readings)
}

// latestSensorReading handles GET /api/v1/sensor-data/:projectId/:sensorType/latest
func (h *Handler) latestSensorReading(c *gin.Context) {
	reading, err := h.service.LatestSensorReading(c.Request.Context(), c.Param("projectId"), SensorType(c.Param("sensorType")))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, reading)
}

// =====================================================
// User and Wallet Endpoints
// =====================================================

// registerUser handles POST /api/v1/users
func (h *Handler) registerUser(c *gin.Context) {
	var req RegisterUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.service.RegisterUser(c.Request.Context(), &req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// getUser handles GET /api/v1/users/:id
func (h *Handler) getUser(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// connectWallet handles POST /api/v1/web3/connect
func (h *Handler) connectWallet(c *gin.Context) {
	var req ConnectWalletRequest
	// an empty body asks for a fresh simulated wallet
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	session, err := h.service.ConnectWallet(c.Request.Context(), &req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

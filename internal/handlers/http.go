package handlers

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aegisshield/security-orchestrator/internal/cryptoprov"
	"github.com/aegisshield/security-orchestrator/internal/detection"
	"github.com/aegisshield/security-orchestrator/internal/metrics"
	"github.com/aegisshield/security-orchestrator/internal/orchestrator"
	"github.com/aegisshield/security-orchestrator/internal/realtime"
	"github.com/aegisshield/security-orchestrator/internal/trust"
	"github.com/aegisshield/security-orchestrator/internal/zerotrust"
)

const serviceName = "security-orchestrator"

// Handler binds the orchestration core to its HTTP/JSON surface
type Handler struct {
	orch      *orchestrator.Orchestrator
	hub       *realtime.Hub
	collector *metrics.Collector
	registry  *prometheus.Registry
	logger    *zap.Logger
}

// NewHandler creates the HTTP handler set
func NewHandler(
	orch *orchestrator.Orchestrator,
	hub *realtime.Hub,
	collector *metrics.Collector,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		orch:      orch,
		hub:       hub,
		collector: collector,
		registry:  registry,
		logger:    logger,
	}
}

// RegisterRoutes registers all routes on the given router
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/dashboard", h.GetDashboard)
	router.GET("/security-posture", h.GetSecurityPosture)
	router.GET("/metrics", h.GetMetrics)

	if h.registry != nil {
		router.GET("/metrics/prometheus", gin.WrapH(
			promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	}

	threat := router.Group("/threat")
	threat.POST("/analyze", h.AnalyzeThreat)
	threat.POST("/behavior", h.AnalyzeBehavior)
	threat.POST("/apt", h.DetectAPT)

	zt := router.Group("/zerotrust")
	zt.POST("/verify", h.VerifyIdentity)
	zt.POST("/access", h.CheckAccess)
	zt.GET("/continuous/:user_id", h.ContinuousAuth)
	zt.POST("/enforce", h.EnforcePolicies)

	crypto := router.Group("/crypto")
	crypto.POST("/encrypt", h.Encrypt)
	crypto.POST("/decrypt", h.Decrypt)
	crypto.GET("/algorithms", h.Algorithms)

	router.GET("/audit/logs", h.AuditLogs)

	if h.hub != nil {
		router.GET("/ws/dashboard", func(c *gin.Context) {
			h.hub.ServeWS(c.Writer, c.Request)
		})
	}
}

// Root reports service identity and status
func (h *Handler) Root(c *gin.Context) {
	status := "stopped"
	if h.orch.IsRunning() {
		status = "operational"
	}
	c.JSON(http.StatusOK, gin.H{
		"name":    serviceName,
		"status":  status,
		"version": "1.0.0",
	})
}

// Health is the liveness probe
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"running":   h.orch.IsRunning(),
		"timestamp": time.Now().UTC(),
	})
}

// AnalyzeThreat scores a traffic sample and, when a threat is detected,
// routes it through the response pipeline
func (h *Handler) AnalyzeThreat(c *gin.Context) {
	var request struct {
		Data map[string]interface{} `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	started := time.Now()
	analysis, err := h.orch.Detector().AnalyzeNetworkTraffic(request.Data)
	if err != nil {
		h.fail(c, err, "traffic analysis failed")
		return
	}
	if h.collector != nil {
		h.collector.ObserveAnalysisDuration(time.Since(started).Seconds())
	}

	payload := gin.H{
		"status": analysis.Status,
		"score":  analysis.Score,
	}

	if analysis.Event != nil {
		incident, err := h.orch.HandleThreat(c.Request.Context(), analysis.Event)
		if err != nil {
			h.fail(c, err, "threat response failed")
			return
		}
		payload["type"] = analysis.Event.Type
		payload["severity"] = analysis.Event.Severity
		payload["timestamp"] = analysis.Event.DetectedAt
		payload["incident"] = incident

		if h.hub != nil {
			h.hub.Broadcast(realtime.TypeThreat, analysis.Event)
			h.hub.Broadcast(realtime.TypeDashboard, h.orch.GetDashboard())
		}
	}

	c.JSON(http.StatusOK, payload)
}

// AnalyzeBehavior runs UEBA analysis for a user's activity
func (h *Handler) AnalyzeBehavior(c *gin.Context) {
	var request struct {
		UserID   string                 `json:"user_id" binding:"required"`
		Activity map[string]interface{} `json:"activity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orch.Detector().AnalyzeUserBehavior(request.UserID, request.Activity)
	if err != nil {
		h.fail(c, err, "behavior analysis failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// DetectAPT classifies an indicator set
func (h *Handler) DetectAPT(c *gin.Context) {
	var request struct {
		Indicators map[string]interface{} `json:"indicators" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orch.Detector().DetectAPT(request.Indicators)
	if err != nil {
		h.fail(c, err, "apt detection failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// VerifyIdentity runs a zero-trust identity verification
func (h *Handler) VerifyIdentity(c *gin.Context) {
	var request struct {
		UserID  string        `json:"user_id" binding:"required"`
		Context trust.Context `json:"context"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orch.PolicyEngine().VerifyIdentity(request.UserID, request.Context)
	if err != nil {
		h.fail(c, err, "identity verification failed")
		return
	}

	if h.collector != nil {
		h.collector.IdentityVerified(result.Verified)
	}
	h.orch.AuditTrail().LogEvent("identity_verification", request.UserID, "zerotrust", map[string]interface{}{
		"verified":    result.Verified,
		"trust_score": result.TrustScore,
	})

	c.JSON(http.StatusOK, result)
}

// CheckAccess runs a least-privilege access decision
func (h *Handler) CheckAccess(c *gin.Context) {
	var request struct {
		UserID   string `json:"user_id" binding:"required"`
		Resource string `json:"resource" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := h.orch.PolicyEngine().EnforceLeastPrivilege(request.UserID, request.Resource)
	if err != nil {
		h.fail(c, err, "access check failed")
		return
	}
	c.JSON(http.StatusOK, decision)
}

// ContinuousAuth checks whether a user must re-authenticate
func (h *Handler) ContinuousAuth(c *gin.Context) {
	userID := c.Param("user_id")
	c.JSON(http.StatusOK, h.orch.PolicyEngine().ContinuousAuthentication(userID))
}

// EnforcePolicies returns the enforced policy snapshot
func (h *Handler) EnforcePolicies(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.EnforceZeroTrust())
}

// Encrypt passes plaintext through the crypto provider capability
func (h *Handler) Encrypt(c *gin.Context) {
	var request struct {
		Data      string `json:"data" binding:"required"`
		Algorithm string `json:"algorithm"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orch.Crypto().Encrypt([]byte(request.Data), request.Algorithm)
	if err != nil {
		h.fail(c, err, "encryption failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"encrypted_data": hex.EncodeToString(result.Ciphertext),
		"key":            hex.EncodeToString(result.Key),
		"algorithm":      result.Algorithm,
		"metadata":       result.Metadata,
	})
}

// Decrypt reverses Encrypt given the hex ciphertext and key
func (h *Handler) Decrypt(c *gin.Context) {
	var request struct {
		Data      string `json:"data" binding:"required"`
		Key       string `json:"key" binding:"required"`
		Algorithm string `json:"algorithm"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ciphertext, err := hex.DecodeString(request.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data must be hex encoded"})
		return
	}
	key, err := hex.DecodeString(request.Key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key must be hex encoded"})
		return
	}

	plaintext, err := h.orch.Crypto().Decrypt(ciphertext, key, request.Algorithm)
	if err != nil {
		h.fail(c, err, "decryption failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": string(plaintext)})
}

// Algorithms lists the supported crypto algorithms
func (h *Handler) Algorithms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"algorithms": h.orch.Crypto().Algorithms()})
}

// GetDashboard returns the aggregate dashboard view
func (h *Handler) GetDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.GetDashboard())
}

// GetSecurityPosture returns the current posture projection
func (h *Handler) GetSecurityPosture(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.GetSecurityPosture())
}

// GetMetrics returns the counter snapshot
func (h *Handler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.GetMetrics())
}

// AuditLogs returns recent audit trail entries
func (h *Handler) AuditLogs(c *gin.Context) {
	limit := 100
	c.JSON(http.StatusOK, gin.H{"entries": h.orch.AuditTrail().Recent(limit)})
}

// fail maps core error types onto HTTP statuses
func (h *Handler) fail(c *gin.Context, err error, message string) {
	var configErr *cryptoprov.ConfigurationError
	var capErr *detection.CapabilityError
	var trustCapErr *trust.CapabilityUnavailableError
	var lifecycleErr *zerotrust.LifecycleError

	switch {
	case errors.As(err, &configErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &capErr), errors.As(err, &trustCapErr):
		h.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": message})
	case errors.As(err, &lifecycleErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

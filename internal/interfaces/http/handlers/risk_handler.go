// Package handlers contains the gin HTTP handlers. The handlers are thin:
// request decoding and status mapping only, with all semantics in the
// application layer.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sentineliq/riskd/internal/application/service"
	"github.com/sentineliq/riskd/internal/domain/models"
	apperrors "github.com/sentineliq/riskd/pkg/errors"
	"github.com/sentineliq/riskd/pkg/logger"
)

// RiskHandler exposes the decision engine over HTTP.
type RiskHandler struct {
	riskService service.RiskAppService
	logger      logger.Logger
}

// NewRiskHandler creates a new RiskHandler.
func NewRiskHandler(riskService service.RiskAppService, log logger.Logger) *RiskHandler {
	return &RiskHandler{
		riskService: riskService,
		logger:      log.WithComponent("risk_handler"),
	}
}

// Evaluate handles POST /v1/events:evaluate.
func (h *RiskHandler) Evaluate(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		h.respondError(c, apperrors.ErrInvalidEvent("malformed event body").WithCause(err))
		return
	}

	decision, err := h.riskService.Evaluate(c.Request.Context(), &event)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// VerifyLedger handles GET /v1/ledger/verify?from=&to=.
func (h *RiskHandler) VerifyLedger(c *gin.Context) {
	fromSeq, ok := parseSeq(c, "from")
	if !ok {
		return
	}
	toSeq, ok := parseSeq(c, "to")
	if !ok {
		return
	}

	result, err := h.riskService.VerifyLedgerIntegrity(c.Request.Context(), fromSeq, toSeq)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

// UAProfile handles GET /v1/users/:user_id/ua-profile.
func (h *RiskHandler) UAProfile(c *gin.Context) {
	profile, err := h.riskService.UAProfile(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *RiskHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if appErr, ok := apperrors.AsAppError(err); ok {
		status = appErr.HTTPStatus()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", err,
			logger.String("path", c.FullPath()))
	}
	c.JSON(status, apperrors.ToErrorResponse(err))
}

func parseSeq(c *gin.Context, name string) (uint64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(
			apperrors.ErrInvalidEvent("invalid sequence parameter: "+name)))
		return 0, false
	}
	return seq, true
}

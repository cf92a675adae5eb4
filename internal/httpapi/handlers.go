package httpapi

import (
	"context"
	"errors"
	"net/http"

	"trunk-connector/internal/connector"
	"trunk-connector/internal/rbac"
	"trunk-connector/internal/store"
	"trunk-connector/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Connector is the provisioning surface the handlers delegate to.
type Connector interface {
	Connect(ctx context.Context, p connector.ConnectParams) (connector.ConnectResult, error)
	Disconnect(ctx context.Context, p connector.DisconnectParams) (connector.DisconnectResult, error)
	Lookup(ctx context.Context, phoneNumber string) (store.NumberRoute, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Connector Connector
}

// Connect provisions routing for one number. Failures still carry the partial result.
func (h Handlers) Connect(c *gin.Context) {
	if h.Connector == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "connector not configured"})
		return
	}
	var req connector.ConnectParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": connector.KindInvalidParams})
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(c, err, nil)
		return
	}
	if !authorize(c, req.AccountID) {
		return
	}

	res, err := h.Connector.Connect(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, res)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// Disconnect records the request; it does not remove any resource.
func (h Handlers) Disconnect(c *gin.Context) {
	if h.Connector == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "connector not configured"})
		return
	}
	var req connector.DisconnectParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": connector.KindInvalidParams})
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(c, err, nil)
		return
	}
	if !authorize(c, req.AccountID) {
		return
	}

	res, err := h.Connector.Disconnect(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"result": res})
}

// GetNumber resolves a provisioned number to its account and trunks.
func (h Handlers) GetNumber(c *gin.Context) {
	if h.Connector == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "connector not configured"})
		return
	}
	route, err := h.Connector.Lookup(c.Request.Context(), c.Param("phone_number"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	// Numbers of other accounts are reported as missing.
	if err := rbac.AuthorizeRead(c.Request.Context(), route.AccountID); err != nil {
		writeError(c, connector.ErrPhoneNumberNotFound, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"route": route})
}

func authorize(c *gin.Context, accountID string) bool {
	err := rbac.AuthorizeAccount(c.Request.Context(), accountID)
	if err == nil {
		return true
	}
	if errors.Is(err, rbac.ErrCrossAccount) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
	return false
}

func writeError(c *gin.Context, err error, result any) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var cerr *connector.Error
	if errors.As(err, &cerr) {
		status = statusForKind(cerr.Kind)
		body["kind"] = cerr.Kind
		if cerr.Step != "" {
			body["step"] = cerr.Step
		}
	}
	if result != nil {
		body["result"] = result
	}
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("connector request failed", "status", status, "err", err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func statusForKind(k connector.Kind) int {
	switch k {
	case connector.KindInvalidParams:
		return http.StatusBadRequest
	case connector.KindPhoneNumberNotFound:
		return http.StatusNotFound
	case connector.KindAccountConflict:
		return http.StatusConflict
	case connector.KindCarrierAPI, connector.KindMediaPlatformAPI:
		return http.StatusBadGateway
	case connector.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

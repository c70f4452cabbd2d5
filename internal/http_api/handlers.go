package http_api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/payportal/internal/models"
)

// SubscriberHeader carries the caller's address on subscription links.
const SubscriberHeader = "X-Subscriber-Address"

// ErrorResponse is the body of non-protocol error responses.
type ErrorResponse struct {
	Error      string            `json:"error"`
	ReasonCode models.ReasonCode `json:"reasonCode,omitempty"`
}

// SubscribeRequest is the body of the subscribe callback.
type SubscribeRequest struct {
	SubscriberAddress string `json:"subscriberAddress" binding:"required"`
}

// StatusResponse is the body of the status callback.
type StatusResponse struct {
	PaymentLinkID string                `json:"paymentLinkId"`
	Status        models.LinkStatusView `json:"status"`
}

// writeError maps engine errors onto HTTP responses. Forbidden errors carry
// a 403 protocol body.
func (s *HTTPServer) writeError(c *gin.Context, err error) {
	if perr, ok := models.AsProtocolError(err); ok {
		switch perr.Kind {
		case models.KindNotFound:
			c.JSON(http.StatusNotFound, ErrorResponse{Error: perr.Message, ReasonCode: perr.Reason})
		case models.KindForbidden:
			body := models.NewProtocol403Body(c.Param("id"), perr.Reason, nil)
			body.ReasonMessage = perr.Message
			c.JSON(http.StatusForbidden, body)
		default:
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: perr.Message, ReasonCode: perr.Reason})
		}
		return
	}

	s.logger.Errorw("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:      models.ReasonInternalError.Message(),
		ReasonCode: models.ReasonInternalError,
	})
}

func subscriberAddress(c *gin.Context) string {
	if addr := c.Query("subscriber"); addr != "" {
		return addr
	}
	return c.GetHeader(SubscriberHeader)
}

// serverInfo is a handler for the / endpoint.
func (s *HTTPServer) serverInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":      "PayPortal",
		"version":   s.config.Version,
		"protocols": []string{models.Protocol402, models.Protocol403},
		"basePath":  s.config.BasePath,
		"chains":    s.portal.Chains(),
	})
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// access resolves a payment link into a redirect, a 402 offer, a 403
// refusal or a 404.
func (s *HTTPServer) access(c *gin.Context) {
	id := c.Param("id")
	decision, err := s.portal.ResolveAccess(c.Request.Context(), id, subscriberAddress(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	switch decision.Kind {
	case models.DecisionRedirect:
		c.Redirect(http.StatusFound, decision.TargetURL)
	case models.DecisionPaymentRequired:
		c.JSON(http.StatusPaymentRequired, decision.PaymentRequired)
	case models.DecisionForbidden:
		c.JSON(http.StatusForbidden, decision.Forbidden)
	default:
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:      models.ReasonLinkNotFound.Message(),
			ReasonCode: models.ReasonLinkNotFound,
		})
	}
}

func (s *HTTPServer) status(c *gin.Context) {
	id := c.Param("id")
	view, err := s.portal.GetStatus(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	code := http.StatusOK
	if view == models.StatusNotFound {
		code = http.StatusNotFound
	}
	c.JSON(code, StatusResponse{PaymentLinkID: id, Status: view})
}

// confirm answers 200 when confirmed, 202 while pending and 400 on failure.
func (s *HTTPServer) confirm(c *gin.Context) {
	var req models.ConfirmPaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debugw("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if req.SubscriberAddress == "" {
		req.SubscriberAddress = c.GetHeader(SubscriberHeader)
	}

	res, err := s.portal.ConfirmPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	code := http.StatusOK
	switch res.Status {
	case models.ConfirmPending:
		code = http.StatusAccepted
	case models.ConfirmFailed:
		code = http.StatusBadRequest
	}
	c.JSON(code, res)
}

func (s *HTTPServer) subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	sub, err := s.portal.CreateSubscription(c.Request.Context(), c.Param("id"), req.SubscriberAddress)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *HTTPServer) linkSubscription(c *gin.Context) {
	addr := subscriberAddress(c)
	if addr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "subscriber address is required"})
		return
	}
	sub, err := s.portal.GetSubscriptionByAddress(c.Request.Context(), c.Param("id"), addr)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

package http_api

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/payportal/internal/models"
)

// APIKeyHeader authenticates admin requests.
const APIKeyHeader = "X-API-Key"

// CancelRequest is the optional body of the cancel endpoint.
type CancelRequest struct {
	Immediate bool `json:"immediate"`
}

func (s *HTTPServer) apiKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.APIKey == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "admin API is disabled"})
			return
		}
		key := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIKey)) != 1 {
			s.logger.Debugw("Rejected admin request", "path", c.FullPath(), "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid API key"})
			return
		}
		c.Next()
	}
}

func (s *HTTPServer) createLink(c *gin.Context) {
	var req models.CreatePaymentLinkInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debugw("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	link, err := s.portal.CreatePaymentLink(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

func (s *HTTPServer) listLinks(c *gin.Context) {
	links, err := s.portal.ListPaymentLinks(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links})
}

func (s *HTTPServer) getLink(c *gin.Context) {
	link, err := s.portal.GetPaymentLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (s *HTTPServer) deleteLink(c *gin.Context) {
	if err := s.portal.DeletePaymentLink(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) disableLink(c *gin.Context) {
	link, err := s.portal.DisablePaymentLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (s *HTTPServer) listPayments(c *gin.Context) {
	payments, err := s.portal.ListPayments(c.Request.Context(), c.Query("linkId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (s *HTTPServer) listSubscriptions(c *gin.Context) {
	subs, err := s.portal.ListSubscriptions(c.Request.Context(), c.Query("linkId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (s *HTTPServer) getSubscription(c *gin.Context) {
	sub, err := s.portal.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// cancelSubscription accepts {"immediate": true} or ?immediate=true.
func (s *HTTPServer) cancelSubscription(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
			return
		}
	}
	if q := c.Query("immediate"); q != "" {
		req.Immediate, _ = strconv.ParseBool(q)
	}

	sub, err := s.portal.CancelSubscription(c.Request.Context(), c.Param("id"), req.Immediate)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *HTTPServer) pauseSubscription(c *gin.Context) {
	sub, err := s.portal.PauseSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *HTTPServer) resumeSubscription(c *gin.Context) {
	sub, err := s.portal.ResumeSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/internal/auth"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

const (
	headerRequestID = "X-Request-ID"
	identityKey     = "identity"
)

// requestLogger assigns a request id, stores it on the request context and
// logs one line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(headerRequestID, rid)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), rid))

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"req_id", rid,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("http.request", attrs...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("http.request", attrs...)
		default:
			s.logger.Info("http.request", attrs...)
		}
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		s.logger.Error("http.panic",
			"req_id", common.RequestIDFromContext(c.Request.Context()),
			"panic", rec,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("Internal server error"))
	})
}

// cors echoes allow-listed origins with credentials; methods and headers are
// unrestricted. Preflight requests stop here.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && slices.Contains(s.cfg.CORSOrigins, origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if c.Request.Method == http.MethodOptions {
				methods := c.GetHeader("Access-Control-Request-Method")
				if methods == "" {
					methods = "DELETE, GET, HEAD, OPTIONS, PATCH, POST, PUT"
				}
				h.Set("Access-Control-Allow-Methods", methods)
				if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				h.Set("Access-Control-Max-Age", "600")
			}
		}
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// requireAuth verifies the bearer token before any handler touches the body.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			s.logger.Info("auth.missing_bearer", "req_id", common.RequestIDFromContext(ctx))
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("Not authenticated"))
			return
		}
		if s.verifier == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody("Authentication service not available"))
			return
		}

		id, err := s.verifier.Verify(ctx, token)
		if err != nil {
			status := common.HTTPStatus(err)
			if status == http.StatusUnauthorized {
				c.Header("WWW-Authenticate", "Bearer")
			}
			c.AbortWithStatusJSON(status, errorBody(detailOf(err)))
			return
		}

		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(common.WithSubject(ctx, id.UID))
		c.Next()
	}
}

func identityFrom(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(auth.Identity); ok {
			return id
		}
	}
	return auth.Identity{}
}

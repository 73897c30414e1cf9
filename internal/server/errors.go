package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

func errorBody(detail string) gin.H {
	return gin.H{"detail": detail}
}

// detailOf is the caller-facing message for err. Client errors expose only
// the AppError message; server errors keep the cause.
func detailOf(err error) string {
	appErr, ok := common.AsAppError(err)
	if !ok {
		return err.Error()
	}
	if appErr.Cause != nil && common.HTTPStatus(err) == http.StatusInternalServerError {
		return appErr.Message + ": " + appErr.Cause.Error()
	}
	return appErr.Message
}

// writeError maps err to a status and a {"detail": ...} body.
func (s *Server) writeError(c *gin.Context, prefix string, err error) {
	status := common.HTTPStatus(err)
	detail := detailOf(err)
	if status == http.StatusInternalServerError {
		detail = prefix + ": " + detail
		s.logger.Error("http.handler.failed",
			"req_id", common.RequestIDFromContext(c.Request.Context()),
			"path", c.Request.URL.Path,
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, errorBody(detail))
}

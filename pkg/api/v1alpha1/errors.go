package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/groupad/groupad/internal/apierr"
)

func sendError(c *gin.Context, code int, msg string) {
	payload := struct {
		Error string `json:"error,omitempty"`
	}{msg}

	c.AbortWithStatusJSON(code, payload)
}

// sendServiceError maps err onto its apierr.Kind-derived HTTP status, via
// AsKind for an error that was never wrapped with an apierr.Kind at all
// (falls back to KindExternal, a 502).
func sendServiceError(c *gin.Context, err error) {
	kind := apierr.AsKind(err)
	sendError(c, kind.HTTPStatus(), err.Error())
}

func recordAndSendServiceError(c *gin.Context, span trace.Span, logger *zap.Logger, err error) {
	kind := apierr.AsKind(err)

	if logger != nil && kind.HTTPStatus() >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("kind", kind.String()), zap.Error(err))
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	sendError(c, kind.HTTPStatus(), fmt.Sprintf("%s: %s", kind, err))
}

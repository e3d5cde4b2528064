package v1alpha1

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/groupad/groupad/internal/apierr"
)

func TestSendServiceErrorMapsKindToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apierr.NewError(apierr.KindInvalidID, "bad id"), http.StatusBadRequest},
		{apierr.NewError(apierr.KindNotFound, "gone"), http.StatusNotFound},
		{apierr.NewError(apierr.KindForbidden, "nope"), http.StatusForbidden},
		{apierr.NewError(apierr.KindConflict, "exists"), http.StatusConflict},
		{apierr.NewError(apierr.KindExternal, "boom"), http.StatusBadGateway},
		{errors.New("unwrapped"), http.StatusBadGateway},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		sendServiceError(c, tc.err)
		assert.Equal(t, tc.want, w.Code)
	}
}

func TestRecordAndSendServiceErrorSetsSpanStatus(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

	_, span := otel.Tracer("test").Start(c.Request.Context(), "op")
	defer span.End()

	recordAndSendServiceError(c, span, zap.NewNop(), apierr.NewError(apierr.KindConflict, "exists"))

	assert.Equal(t, http.StatusConflict, w.Code)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/groupad/groupad/internal/filter"
)

// livenessCheck ensures that the server is up and responding.
func (s *Server) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
	})
}

// readinessCheck ensures that the server is up and that the directory
// backing the configured Service answers a trivial query.
func (s *Server) readinessCheck(c *gin.Context) {
	if s.Service != nil {
		if _, err := s.Service.GW.IsDNMatchingFilter(c.Request.Context(), s.Service.Cfg.Naming.BaseDN, filter.True()); err != nil {
			s.Conf.Logger.Error("readiness check directory ping failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "DOWN",
			})

			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
	})
}

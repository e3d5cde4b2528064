package v1alpha1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// searchSubjects handles GET /subjects?q=<token>&source=<dn>&limit=<n>.
// source restricts the search to a single configured subject source DN;
// omitted, every configured source is searched.
func (r *Router) searchSubjects(c *gin.Context) {
	out, err := r.Service.SearchSubjects(c.Request.Context(), c.Query("q"), sizeLimitFrom(c), c.Query("source"))
	if err != nil {
		sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

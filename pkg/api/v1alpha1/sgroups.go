package v1alpha1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/groupad/groupad/internal/model"
)

const defaultSearchSizeLimit = 100

func sizeLimitFrom(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultSearchSizeLimit
}

func rightFrom(c *gin.Context, fallback model.Right) model.Right {
	switch c.Query("right") {
	case "reader":
		return model.RightReader
	case "updater":
		return model.RightUpdater
	case "admin":
		return model.RightAdmin
	default:
		return fallback
	}
}

// searchSgroups handles GET /sgroups?q=<token>&right=<right>&limit=<n>.
func (r *Router) searchSgroups(c *gin.Context) {
	identity := ctxIdentity(c)

	out, err := r.Service.SearchGroups(c.Request.Context(), identity, rightFrom(c, model.RightReader), c.Query("q"), sizeLimitFrom(c))
	if err != nil {
		sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// myGroups handles GET /sgroups/mine.
func (r *Router) myGroups(c *gin.Context) {
	identity := ctxIdentity(c)

	out, err := r.Service.MyGroups(c.Request.Context(), identity)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// createSgroup handles POST /sgroups/:id.
func (r *Router) createSgroup(c *gin.Context) {
	identity := ctxIdentity(c)
	id := c.Param("id")

	var attrs model.SgroupAttrs
	if err := c.ShouldBindJSON(&attrs); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := r.Service.Create(c.Request.Context(), identity, id, attrs); err != nil {
		sendServiceError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

// getSgroup handles GET /sgroups/:id.
func (r *Router) getSgroup(c *gin.Context) {
	identity := ctxIdentity(c)
	id := c.Param("id")

	out, err := r.Service.GetSgroup(c.Request.Context(), identity, id)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// modifySgroupAttrs handles PATCH /sgroups/:id.
func (r *Router) modifySgroupAttrs(c *gin.Context) {
	identity := ctxIdentity(c)
	id := c.Param("id")

	var attrs model.SgroupAttrs
	if err := c.ShouldBindJSON(&attrs); err != nil {
		sendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := r.Service.ModifySgroupAttrs(c.Request.Context(), identity, id, attrs); err != nil {
		sendServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// deleteSgroup handles DELETE /sgroups/:id.
func (r *Router) deleteSgroup(c *gin.Context) {
	identity := ctxIdentity(c)
	id := c.Param("id")

	if err := r.Service.Delete(c.Request.Context(), identity, id); err != nil {
		sendServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// getSgroupChildren handles GET /sgroups/:id/children.
func (r *Router) getSgroupChildren(c *gin.Context) {
	id := c.Param("id")

	out, err := r.Service.GetChildren(c.Request.Context(), id)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// getSgroupDirectRights handles GET /sgroups/:id/rights.
func (r *Router) getSgroupDirectRights(c *gin.Context) {
	identity := ctxIdentity(c)
	id := c.Param("id")

	out, err := r.Service.GetSgroupDirectRights(c.Request.Context(), identity, id)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// modifySgroupMembersOrRights handles POST /sgroups/:id/rights, with a body
// shaped as model.Mods: {"<mright>": {"<verb>": ["<url>", ...]}}.
func (r *Router) modifySgroupMembersOrRights(c *gin.Context) {
	identity := ctxIdentity(c)
	id := c.Param("id")

	mods, err := bindMods(c)
	if err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.Service.ModifyMembersOrRights(c.Request.Context(), identity, id, mods); err != nil {
		sendServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// wireRequest is the wire shape of a ModifyMembersOrRights request body:
// a mright name mapped to a verb name mapped to the list of relation URLs
// it applies to.
type wireRequest map[string]map[string][]string

func bindMods(c *gin.Context) (model.Mods, error) {
	var wire wireRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		return nil, err
	}

	mods := make(model.Mods, len(wire))
	for mrightName, verbs := range wire {
		mright, err := model.ParseMright(mrightName)
		if err != nil {
			return nil, err
		}
		submods := make(map[model.Mod][]string, len(verbs))
		for verbName, urls := range verbs {
			verb, err := parseMod(verbName)
			if err != nil {
				return nil, err
			}
			submods[verb] = urls
		}
		mods[mright] = submods
	}
	return mods, nil
}

func parseMod(s string) (model.Mod, error) {
	switch s {
	case "add":
		return model.ModAdd, nil
	case "delete":
		return model.ModDelete, nil
	case "replace":
		return model.ModReplace, nil
	default:
		return 0, errInvalidModVerb(s)
	}
}

type errInvalidModVerb string

func (e errInvalidModVerb) Error() string { return "invalid mod verb " + string(e) }

// getSgroupFlattenedMright handles GET /sgroups/:id/flattened/:mright.
func (r *Router) getSgroupFlattenedMright(c *gin.Context) {
	identity := ctxIdentity(c)
	id := c.Param("id")

	mright, err := model.ParseMright(c.Param("mright"))
	if err != nil {
		sendError(c, http.StatusBadRequest, err.Error())
		return
	}

	out, err := r.Service.GetGroupFlattenedMright(c.Request.Context(), identity, id, mright)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// getSgroupLogs handles GET /sgroups/:id/logs?max=<bytes>.
func (r *Router) getSgroupLogs(c *gin.Context) {
	identity := ctxIdentity(c)
	id := c.Param("id")

	maxBytes := int64(1 << 16)
	if raw := c.Query("max"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			maxBytes = n
		}
	}

	out, err := r.Service.GetSgroupLogs(c.Request.Context(), identity, id, maxBytes)
	if err != nil {
		sendServiceError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", out)
}

// syncSgroup handles POST /sgroups/:id/sync: triggers an out-of-band
// synchronization cycle for a single remote-backed group, bypassing the
// scheduler's periodicity. Requires a Syncer to be wired onto the Router;
// nil means the deployment has no remote sources configured at all.
func (r *Router) syncSgroup(c *gin.Context) {
	id := c.Param("id")

	if r.Syncer == nil {
		sendError(c, http.StatusNotImplemented, "remote synchronization is not configured")
		return
	}

	if err := r.Syncer.SyncOne(c.Request.Context(), id); err != nil {
		sendServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

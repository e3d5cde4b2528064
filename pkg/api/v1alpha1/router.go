package v1alpha1

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/metal-toolbox/auditevent/ginaudit"

	"github.com/groupad/groupad/internal/eventbus"
	"github.com/groupad/groupad/internal/groupad"
	"github.com/groupad/groupad/internal/remotesync"
)

// Version is the API version constant.
const Version = "v1alpha1"

// Router is the groupad API router: every route hangs off a single
// orchestration Service, auth middleware, audit middleware and (optional)
// event bus publisher.
type Router struct {
	Service  *groupad.Service
	Auth     AuthConf
	AuditMW  *ginaudit.Middleware
	EventBus *eventbus.Client
	// Syncer, if non-nil, backs the out-of-band POST /sgroups/:id/sync
	// endpoint. A deployment with no remote sources configured leaves this
	// nil and the endpoint answers 501.
	Syncer *remotesync.Syncer
	Logger *zap.Logger
}

// Routes registers every sgroup/subject endpoint under rg, each wrapped
// with the audit middleware and the bearer/cookie auth middleware.
func (r *Router) Routes(rg *gin.RouterGroup) {
	auth := r.AuthRequired()

	rg.GET(
		"/sgroups",
		r.AuditMW.AuditWithType("SearchSgroups"),
		auth,
		r.searchSgroups,
	)

	rg.GET(
		"/sgroups/mine",
		r.AuditMW.AuditWithType("MySgroups"),
		auth,
		r.myGroups,
	)

	rg.POST(
		"/sgroups/:id",
		r.AuditMW.AuditWithType("CreateSgroup"),
		auth,
		r.createSgroup,
	)

	rg.GET(
		"/sgroups/:id",
		r.AuditMW.AuditWithType("GetSgroup"),
		auth,
		r.getSgroup,
	)

	rg.PATCH(
		"/sgroups/:id",
		r.AuditMW.AuditWithType("ModifySgroupAttrs"),
		auth,
		r.modifySgroupAttrs,
	)

	rg.DELETE(
		"/sgroups/:id",
		r.AuditMW.AuditWithType("DeleteSgroup"),
		auth,
		r.deleteSgroup,
	)

	rg.GET(
		"/sgroups/:id/children",
		r.AuditMW.AuditWithType("GetSgroupChildren"),
		auth,
		r.getSgroupChildren,
	)

	rg.GET(
		"/sgroups/:id/rights",
		r.AuditMW.AuditWithType("GetSgroupDirectRights"),
		auth,
		r.getSgroupDirectRights,
	)

	rg.POST(
		"/sgroups/:id/rights",
		r.AuditMW.AuditWithType("ModifySgroupRights"),
		auth,
		r.modifySgroupMembersOrRights,
	)

	rg.GET(
		"/sgroups/:id/flattened/:mright",
		r.AuditMW.AuditWithType("GetSgroupFlattenedMright"),
		auth,
		r.getSgroupFlattenedMright,
	)

	rg.GET(
		"/sgroups/:id/logs",
		r.AuditMW.AuditWithType("GetSgroupLogs"),
		auth,
		r.getSgroupLogs,
	)

	rg.POST(
		"/sgroups/:id/sync",
		r.AuditMW.AuditWithType("SyncSgroup"),
		auth,
		r.syncSgroup,
	)

	rg.GET(
		"/subjects",
		r.AuditMW.AuditWithType("SearchSubjects"),
		auth,
		r.searchSubjects,
	)
}

package v1

import (
	"github.com/gin-gonic/gin"

	appctx "seqnum/internal/core/context"
	"seqnum/internal/infrastructure/http/v1/handlers"
	"seqnum/internal/infrastructure/http/v1/middleware"
)

// RecordRouteHandler defines the handlers behind the records routes.
type RecordRouteHandler interface {
	Tables(c *gin.Context)
	Table(c *gin.Context)
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	Next(c *gin.Context)
	Verify(c *gin.Context)
}

var _ RecordRouteHandler = (*handlers.RecordsHandler)(nil)

// RegisterRecordRoutes registers the table and record routes under group.
// With roles enabled, reads need reader, writes need writer and verification needs admin.
func RegisterRecordRoutes(group *gin.RouterGroup, handler RecordRouteHandler, roles bool) {
	read, write, admin := noop, noop, noop
	if roles {
		read = middleware.RequireRole(appctx.RoleReader, appctx.RoleWriter)
		write = middleware.RequireRole(appctx.RoleWriter)
		admin = middleware.RequireRole(appctx.RoleAdmin)
	}

	tables := group.Group("/tables")
	tables.GET("", read, handler.Tables)
	tables.GET("/:table", read, handler.Table)
	tables.GET("/:table/verify", admin, handler.Verify)
	tables.GET("/:table/sequences/:column/next", read, handler.Next)

	rows := tables.Group("/:table/records")
	rows.GET("", read, handler.List)
	rows.POST("", write, handler.Create)
	rows.GET("/:id", read, handler.Get)
	rows.PUT("/:id", write, handler.Update)
	rows.DELETE("/:id", write, handler.Delete)
}

func noop(c *gin.Context) { c.Next() }

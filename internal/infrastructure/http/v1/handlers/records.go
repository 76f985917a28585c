package handlers

import (
	"github.com/gin-gonic/gin"

	"seqnum/internal/domain/records"
	"seqnum/internal/infrastructure/http/v1/dto"
)

// RecordsHandler serves the rows of configured tables.
type RecordsHandler struct {
	*BaseHandler
	service *records.Service
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(base *BaseHandler, service *records.Service) *RecordsHandler {
	return &RecordsHandler{BaseHandler: base, service: service}
}

// Tables handles GET /tables.
func (h *RecordsHandler) Tables(c *gin.Context) {
	schemas := h.service.Tables()
	out := make([]dto.TableResponse, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, dto.FromSchema(s))
	}
	h.OK(c, out)
}

// Table handles GET /tables/:table.
func (h *RecordsHandler) Table(c *gin.Context) {
	schema, err := h.service.Schema(c.Param("table"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.FromSchema(schema))
}

// List handles GET /tables/:table/records.
// Filters are passed as where[column]=value; orderBy=-number sorts descending.
func (h *RecordsHandler) List(c *gin.Context) {
	filter := records.DefaultListFilter()
	filter.Limit = h.ParseIntQuery(c, "limit", filter.Limit)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)
	filter.OrderBy = c.Query("orderBy")

	if where := c.QueryMap("where"); len(where) > 0 {
		filter.Where = make(map[string]any, len(where))
		for col, v := range where {
			filter.Where[col] = dto.ParseQueryValue(v)
		}
	}

	result, err := h.service.List(c.Request.Context(), c.Param("table"), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromRows(result.Items),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Create handles POST /tables/:table/records.
func (h *RecordsHandler) Create(c *gin.Context) {
	var req dto.RecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	row, err := h.service.Create(c.Request.Context(), c.Param("table"), req.Normalized())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.FromRow(row))
}

// Get handles GET /tables/:table/records/:id.
func (h *RecordsHandler) Get(c *gin.Context) {
	rowID, ok := h.ParseID(c)
	if !ok {
		return
	}

	row, err := h.service.Get(c.Request.Context(), c.Param("table"), rowID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.FromRow(row))
}

// Update handles PUT /tables/:table/records/:id.
func (h *RecordsHandler) Update(c *gin.Context) {
	rowID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.RecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	row, err := h.service.Update(c.Request.Context(), c.Param("table"), rowID, req.Normalized())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.FromRow(row))
}

// Delete handles DELETE /tables/:table/records/:id.
func (h *RecordsHandler) Delete(c *gin.Context) {
	rowID, ok := h.ParseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("table"), rowID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Next handles GET /tables/:table/sequences/:column/next.
// Scope values are passed as query parameters named after the scope columns.
func (h *RecordsHandler) Next(c *gin.Context) {
	table, column := c.Param("table"), c.Param("column")

	values := make(map[string]any)
	for key, vals := range c.Request.URL.Query() {
		if len(vals) > 0 {
			values[key] = dto.ParseQueryValue(vals[0])
		}
	}

	next, err := h.service.Next(c.Request.Context(), table, column, values)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.NextResponse{Table: table, Column: column, Value: next})
}

// Verify handles GET /tables/:table/verify.
func (h *RecordsHandler) Verify(c *gin.Context) {
	violations, err := h.service.Verify(c.Request.Context(), c.Param("table"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if violations == nil {
		violations = []records.Violation{}
	}
	h.OK(c, dto.VerifyResponse{OK: len(violations) == 0, Violations: violations})
}

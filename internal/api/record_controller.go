package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/progenxxx/hris-sub006/internal/auth"
	"github.com/progenxxx/hris-sub006/internal/service"
	"github.com/progenxxx/hris-sub006/internal/utils"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RecordController 会议、活动、请假单、出差单的统一控制器
type RecordController struct {
	records service.RecordService
	exports service.ExportService
	audit   service.AuditLogService
}

// NewRecordController 创建记录控制器
func NewRecordController(records service.RecordService, exports service.ExportService, audit service.AuditLogService) *RecordController {
	return &RecordController{
		records: records,
		exports: exports,
		audit:   audit,
	}
}

// KindInfo 记录类型描述
type KindInfo struct {
	Name             string                              `json:"name"`
	Label            string                              `json:"label"`
	Statuses         []workflow.Status                   `json:"statuses"`
	Initial          []workflow.Status                   `json:"initial"`
	SearchFields     []string                            `json:"search_fields"`
	DepartmentScoped bool                                `json:"department_scoped"`
	RequireEmployees bool                                `json:"require_employees"`
	Transitions      map[workflow.Status][]workflow.Edge `json:"transitions"`
}

// HistoryEntry 状态变更历史
type HistoryEntry struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Remarks   string    `json:"remarks,omitempty"`
	Operator  string    `json:"operator"`
	Forced    bool      `json:"forced"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry 审计日志
type AuditEntry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Action    string          `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
	IP        string          `json:"ip,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// kindParam 校验路径中的记录类型
func (c *RecordController) kindParam(ctx *gin.Context) (string, bool) {
	kind := ctx.Param("kind")
	if err := utils.ValidateKindName(kind); err != nil {
		Error(ctx, http.StatusBadRequest, T(ctx, "error.unknown_kind"), err.Error())
		return "", false
	}
	if _, ok := c.records.Kinds().Get(kind); !ok {
		Error(ctx, http.StatusNotFound, T(ctx, "error.unknown_kind"), kind)
		return "", false
	}
	return kind, true
}

// idParam 校验路径中的记录 ID
func (c *RecordController) idParam(ctx *gin.Context) (string, bool) {
	id := ctx.Param("id")
	if err := utils.ValidateRecordID(id); err != nil {
		Error(ctx, http.StatusBadRequest, T(ctx, "error.invalid_id"), err.Error())
		return "", false
	}
	return id, true
}

func bindJSON(ctx *gin.Context, out interface{}) bool {
	if err := ctx.ShouldBindJSON(out); err != nil {
		Error(ctx, http.StatusBadRequest, T(ctx, "error.bad_request"), err.Error())
		return false
	}
	return true
}

// Kinds 列出记录类型
// @Summary      记录类型
// @Description  返回已注册的记录类型及其状态转换表
// @Tags         记录
// @Produce      json
// @Success      200  {object}  Response{data=[]KindInfo}
// @Failure      401  {object}  ErrorResponse
// @Router       /kinds [get]
// @Security     BearerAuth
func (c *RecordController) Kinds(ctx *gin.Context) {
	registry := c.records.Kinds()
	infos := make([]KindInfo, 0, len(registry.Names()))
	for _, name := range registry.Names() {
		kc, _ := registry.Get(name)
		transitions := make(map[workflow.Status][]workflow.Edge, len(kc.Statuses))
		for _, s := range kc.Statuses {
			if edges := kc.Table().Edges(s); len(edges) > 0 {
				transitions[s] = edges
			}
		}
		infos = append(infos, KindInfo{
			Name:             kc.Name,
			Label:            kc.Label,
			Statuses:         kc.Statuses,
			Initial:          kc.Initial,
			SearchFields:     kc.SearchFields,
			DepartmentScoped: kc.DepartmentScoped,
			RequireEmployees: kc.RequireEmployees,
			Transitions:      transitions,
		})
	}
	Success(ctx, infos)
}

// List 查询记录
// @Summary      查询记录
// @Description  按状态、关键字和开始日期过滤,data 以类型名为键
// @Tags         记录
// @Produce      json
// @Param        kind       path   string  true   "记录类型"
// @Param        status     query  string  false  "状态,all 表示不过滤"
// @Param        search     query  string  false  "关键字"
// @Param        from_date  query  string  false  "开始日期 YYYY-MM-DD"
// @Param        to_date    query  string  false  "结束日期 YYYY-MM-DD"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /{kind}/list [get]
// @Security     BearerAuth
func (c *RecordController) List(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	var criteria workflow.Criteria
	if err := ctx.ShouldBindQuery(&criteria); err != nil {
		Error(ctx, http.StatusBadRequest, T(ctx, "error.bad_request"), err.Error())
		return
	}

	recs, err := c.records.List(ctx.Request.Context(), kind, criteria)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	if recs == nil {
		recs = []workflow.Record{}
	}
	Success(ctx, gin.H{kind: recs})
}

// Export 导出 xlsx
// @Summary      导出记录
// @Description  按与列表相同的过滤条件导出 xlsx
// @Tags         记录
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        kind       path   string  true   "记录类型"
// @Param        status     query  string  false  "状态"
// @Param        search     query  string  false  "关键字"
// @Param        from_date  query  string  false  "开始日期 YYYY-MM-DD"
// @Param        to_date    query  string  false  "结束日期 YYYY-MM-DD"
// @Success      200  {file}    file
// @Failure      422  {object}  ErrorResponse
// @Router       /{kind}/export [get]
// @Security     BearerAuth
func (c *RecordController) Export(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	var criteria workflow.Criteria
	if err := ctx.ShouldBindQuery(&criteria); err != nil {
		Error(ctx, http.StatusBadRequest, T(ctx, "error.bad_request"), err.Error())
		return
	}

	var buf bytes.Buffer
	if _, err := c.exports.Export(ctx.Request.Context(), kind, criteria, &buf); err != nil {
		RespondError(ctx, err)
		return
	}
	filename := fmt.Sprintf("%s-%s.xlsx", kind, time.Now().Format("20060102"))
	ctx.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	ctx.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Get 获取记录
// @Summary      获取记录
// @Tags         记录
// @Produce      json
// @Param        kind  path  string  true  "记录类型"
// @Param        id    path  string  true  "记录 ID"
// @Success      200  {object}  Response{data=workflow.Record}
// @Failure      404  {object}  ErrorResponse
// @Router       /{kind}/{id} [get]
// @Security     BearerAuth
func (c *RecordController) Get(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	id, ok := c.idParam(ctx)
	if !ok {
		return
	}
	rec, err := c.records.Get(ctx.Request.Context(), kind, id)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, rec)
}

// Create 新建记录
// @Summary      新建记录
// @Description  多员工申报时每个员工生成一条记录,返回全部新记录
// @Tags         记录
// @Accept       json
// @Produce      json
// @Param        kind     path  string          true  "记录类型"
// @Param        request  body  workflow.Draft  true  "记录内容"
// @Success      201  {object}  Response{data=[]workflow.Record}
// @Failure      400  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /{kind} [post]
// @Security     BearerAuth
func (c *RecordController) Create(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	var draft workflow.Draft
	if !bindJSON(ctx, &draft) {
		return
	}
	recs, err := c.records.Create(ctx.Request.Context(), kind, auth.PrincipalFrom(ctx), draft)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Created(ctx, recs)
}

// Override 表单无法发送 PUT/DELETE 时通过 _method 或 X-HTTP-Method-Override 分发
// @Summary      更新或删除记录(方法覆盖)
// @Tags         记录
// @Accept       json
// @Produce      json
// @Param        kind     path   string  true   "记录类型"
// @Param        id       path   string  true   "记录 ID"
// @Param        _method  query  string  true   "PUT 或 DELETE"
// @Success      200  {object}  Response
// @Failure      405  {object}  ErrorResponse
// @Router       /{kind}/{id} [post]
// @Security     BearerAuth
func (c *RecordController) Override(ctx *gin.Context) {
	method := ctx.Query("_method")
	if method == "" {
		method = ctx.GetHeader("X-HTTP-Method-Override")
	}
	switch strings.ToUpper(method) {
	case http.MethodPut, http.MethodPatch:
		c.Update(ctx)
	case http.MethodDelete:
		c.Delete(ctx)
	default:
		Error(ctx, http.StatusMethodNotAllowed, "method not allowed", "use _method=PUT or _method=DELETE")
	}
}

// Update 编辑记录,不改变状态
// @Summary      编辑记录
// @Tags         记录
// @Accept       json
// @Produce      json
// @Param        kind     path  string          true  "记录类型"
// @Param        id       path  string          true  "记录 ID"
// @Param        request  body  workflow.Draft  true  "记录内容"
// @Success      200  {object}  Response{data=workflow.Record}
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /{kind}/{id} [put]
// @Security     BearerAuth
func (c *RecordController) Update(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	id, ok := c.idParam(ctx)
	if !ok {
		return
	}
	var draft workflow.Draft
	if !bindJSON(ctx, &draft) {
		return
	}
	rec, err := c.records.Update(ctx.Request.Context(), kind, id, auth.PrincipalFrom(ctx), draft)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, rec)
}

// Delete 删除记录,仅初始状态可删除
// @Summary      删除记录
// @Tags         记录
// @Produce      json
// @Param        kind  path  string  true  "记录类型"
// @Param        id    path  string  true  "记录 ID"
// @Success      200  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /{kind}/{id} [delete]
// @Security     BearerAuth
func (c *RecordController) Delete(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	id, ok := c.idParam(ctx)
	if !ok {
		return
	}
	if err := c.records.Delete(ctx.Request.Context(), kind, id, auth.PrincipalFrom(ctx)); err != nil {
		RespondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, Response{Code: 0, Message: T(ctx, "success.deleted")})
}

// UpdateStatus 单条状态变更
// @Summary      变更状态
// @Description  按转换表校验,拒绝、取消等转换需要备注
// @Tags         记录
// @Accept       json
// @Produce      json
// @Param        kind     path  string                  true  "记录类型"
// @Param        id       path  string                  true  "记录 ID"
// @Param        request  body  workflow.StatusRequest  true  "目标状态"
// @Success      200  {object}  Response{data=workflow.Record}
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /{kind}/{id}/status [post]
// @Security     BearerAuth
func (c *RecordController) UpdateStatus(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	id, ok := c.idParam(ctx)
	if !ok {
		return
	}
	var req workflow.StatusRequest
	if !bindJSON(ctx, &req) {
		return
	}
	rec, err := c.records.ChangeStatus(ctx.Request.Context(), kind, id, auth.PrincipalFrom(ctx), req)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, rec)
}

// Reschedule 改期
// @Summary      改期
// @Description  需要新的开始和结束时间,记录回到初始状态
// @Tags         记录
// @Accept       json
// @Produce      json
// @Param        kind     path  string                      true  "记录类型"
// @Param        id       path  string                      true  "记录 ID"
// @Param        request  body  workflow.RescheduleRequest  true  "新的时间"
// @Success      200  {object}  Response{data=workflow.Record}
// @Failure      403  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /{kind}/{id}/reschedule [post]
// @Security     BearerAuth
func (c *RecordController) Reschedule(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	id, ok := c.idParam(ctx)
	if !ok {
		return
	}
	var req workflow.RescheduleRequest
	if !bindJSON(ctx, &req) {
		return
	}
	rec, err := c.records.Reschedule(ctx.Request.Context(), kind, id, auth.PrincipalFrom(ctx), req)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, rec)
}

// BulkUpdateStatus 批量状态变更,全部成功或全部失败
// @Summary      批量变更状态
// @Tags         记录
// @Accept       json
// @Produce      json
// @Param        kind     path  string                true  "记录类型"
// @Param        request  body  workflow.BulkRequest  true  "记录 ID 与目标状态"
// @Success      200  {object}  Response{data=workflow.BulkResult}
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /{kind}/bulkUpdateStatus [post]
// @Security     BearerAuth
func (c *RecordController) BulkUpdateStatus(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	var req workflow.BulkRequest
	if !bindJSON(ctx, &req) {
		return
	}
	for _, id := range req.IDs {
		if err := utils.ValidateRecordID(id); err != nil {
			ValidationFailed(ctx, T(ctx, "error.validation"), map[string][]string{"ids": {id + ": " + err.Error()}})
			return
		}
	}
	result, err := c.records.BulkUpdateStatus(ctx.Request.Context(), kind, auth.PrincipalFrom(ctx), req)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	Success(ctx, result)
}

// History 状态变更历史
// @Summary      状态变更历史
// @Tags         记录
// @Produce      json
// @Param        kind  path  string  true  "记录类型"
// @Param        id    path  string  true  "记录 ID"
// @Success      200  {object}  Response{data=[]HistoryEntry}
// @Failure      404  {object}  ErrorResponse
// @Router       /{kind}/{id}/history [get]
// @Security     BearerAuth
func (c *RecordController) History(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	id, ok := c.idParam(ctx)
	if !ok {
		return
	}
	rows, err := c.records.History(ctx.Request.Context(), kind, id)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	entries := make([]HistoryEntry, 0, len(rows))
	for _, h := range rows {
		entries = append(entries, HistoryEntry{
			ID:        h.ID,
			From:      h.FromState,
			To:        h.ToState,
			Remarks:   h.Remarks,
			Operator:  h.Operator,
			Forced:    h.Forced,
			CreatedAt: h.CreatedAt,
		})
	}
	Success(ctx, entries)
}

// Audit 审计日志,仅 HRD 和超级管理员可见
// @Summary      审计日志
// @Tags         记录
// @Produce      json
// @Param        kind  path  string  true  "记录类型"
// @Param        id    path  string  true  "记录 ID"
// @Success      200  {object}  Response{data=[]AuditEntry}
// @Failure      403  {object}  ErrorResponse
// @Router       /{kind}/{id}/audit [get]
// @Security     BearerAuth
func (c *RecordController) Audit(ctx *gin.Context) {
	kind, ok := c.kindParam(ctx)
	if !ok {
		return
	}
	id, ok := c.idParam(ctx)
	if !ok {
		return
	}
	logs, err := c.audit.ForResource(ctx.Request.Context(), kind, id)
	if err != nil {
		RespondError(ctx, err)
		return
	}
	entries := make([]AuditEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, AuditEntry{
			ID:        l.ID,
			UserID:    l.UserID,
			Action:    l.Action,
			RequestID: l.RequestID,
			IP:        l.IP,
			Details:   json.RawMessage(l.Details),
			CreatedAt: l.CreatedAt,
		})
	}
	Success(ctx, entries)
}

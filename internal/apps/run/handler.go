/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package run

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP handlers for run history and event log operations.
// Handler 提供运行历史和事件日志操作的 HTTP 处理器。
type Handler struct {
	repo *Repository
}

// NewHandler creates a new Handler instance.
// NewHandler 创建一个新的 Handler 实例。
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ==================== Request/Response Types 请求/响应类型 ====================

// ListRunsRequest represents the request for listing process runs.
// ListRunsRequest 表示获取进程运行列表的请求。
type ListRunsRequest struct {
	Current     int       `json:"current" form:"current" binding:"min=1"`
	Size        int       `json:"size" form:"size" binding:"min=1,max=100"`
	RunID       string    `json:"run_id" form:"run_id"`
	Process     string    `json:"process" form:"process"`
	ProcessType string    `json:"process_type" form:"process_type"`
	Status      RunStatus `json:"status" form:"status"`
	StartTime   string    `json:"start_time" form:"start_time"`
	EndTime     string    `json:"end_time" form:"end_time"`
}

// ListRunsResponse represents the response for listing process runs.
// ListRunsResponse 表示获取进程运行列表的响应。
type ListRunsResponse struct {
	ErrorMsg string `json:"error_msg"`
	Data     *struct {
		Total int64      `json:"total"`
		Runs  []*RunInfo `json:"runs"`
	} `json:"data"`
}

// GetRunResponse represents the response for getting a run record.
// GetRunResponse 表示获取运行记录详情的响应。
type GetRunResponse struct {
	ErrorMsg string   `json:"error_msg"`
	Data     *RunInfo `json:"data"`
}

// ListEventsRequest represents the request for listing process events.
// ListEventsRequest 表示获取进程事件列表的请求。
type ListEventsRequest struct {
	Current   int    `json:"current" form:"current" binding:"min=1"`
	Size      int    `json:"size" form:"size" binding:"min=1,max=100"`
	Process   string `json:"process" form:"process"`
	Type      string `json:"type" form:"type"`
	StartTime string `json:"start_time" form:"start_time"`
	EndTime   string `json:"end_time" form:"end_time"`
}

// ListEventsResponse represents the response for listing process events.
// ListEventsResponse 表示获取进程事件列表的响应。
type ListEventsResponse struct {
	ErrorMsg string `json:"error_msg"`
	Data     *struct {
		Total  int64        `json:"total"`
		Events []*EventInfo `json:"events"`
	} `json:"data"`
}

// ==================== Run Handlers 运行记录处理器 ====================

// ListRuns handles GET /api/v1/runs - lists process runs with filtering and pagination.
// ListRuns 处理 GET /api/v1/runs - 获取进程运行列表（支持过滤和分页）。
// @Tags run
// @Param request query ListRunsRequest true "查询参数"
// @Produce json
// @Success 200 {object} ListRunsResponse
// @Router /api/v1/runs [get]
func (h *Handler) ListRuns(c *gin.Context) {
	req := &ListRunsRequest{Current: 1, Size: 20}
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, ListRunsResponse{ErrorMsg: err.Error()})
		return
	}

	// Parse time filters - 解析时间过滤条件
	startTime, endTime, errMsg := parseTimeRange(req.StartTime, req.EndTime)
	if errMsg != "" {
		c.JSON(http.StatusBadRequest, ListRunsResponse{ErrorMsg: errMsg})
		return
	}

	// Build filter from request - 从请求构建过滤条件
	filter := &RunFilter{
		RunID:       req.RunID,
		Process:     req.Process,
		ProcessType: req.ProcessType,
		Status:      req.Status,
		StartTime:   startTime,
		EndTime:     endTime,
		Page:        req.Current,
		PageSize:    req.Size,
	}

	runs, total, err := h.repo.ListRuns(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ListRunsResponse{ErrorMsg: err.Error()})
		return
	}

	// Convert to response format - 转换为响应格式
	infos := make([]*RunInfo, len(runs))
	for i, rec := range runs {
		infos[i] = rec.ToRunInfo()
	}

	c.JSON(http.StatusOK, ListRunsResponse{
		Data: &struct {
			Total int64      `json:"total"`
			Runs  []*RunInfo `json:"runs"`
		}{
			Total: total,
			Runs:  infos,
		},
	})
}

// GetRun handles GET /api/v1/runs/:run_id - gets a run record by run ID.
// GetRun 处理 GET /api/v1/runs/:run_id - 根据运行 ID 获取运行记录详情。
// @Tags run
// @Produce json
// @Param run_id path string true "运行ID"
// @Success 200 {object} GetRunResponse
// @Router /api/v1/runs/{run_id} [get]
func (h *Handler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, GetRunResponse{
			ErrorMsg: "无效的运行 ID / Invalid run ID",
		})
		return
	}

	rec, err := h.repo.GetRunByRunID(c.Request.Context(), runID)
	if err != nil {
		statusCode := h.getStatusCodeForError(err)
		c.JSON(statusCode, GetRunResponse{ErrorMsg: err.Error()})
		return
	}

	c.JSON(http.StatusOK, GetRunResponse{Data: rec.ToRunInfo()})
}

// ==================== Event Handlers 事件日志处理器 ====================

// ListEvents handles GET /api/v1/events - lists process events with filtering and pagination.
// ListEvents 处理 GET /api/v1/events - 获取进程事件列表（支持过滤和分页）。
// @Tags run
// @Param request query ListEventsRequest true "查询参数"
// @Produce json
// @Success 200 {object} ListEventsResponse
// @Router /api/v1/events [get]
func (h *Handler) ListEvents(c *gin.Context) {
	req := &ListEventsRequest{Current: 1, Size: 20}
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, ListEventsResponse{ErrorMsg: err.Error()})
		return
	}

	// Parse time filters - 解析时间过滤条件
	startTime, endTime, errMsg := parseTimeRange(req.StartTime, req.EndTime)
	if errMsg != "" {
		c.JSON(http.StatusBadRequest, ListEventsResponse{ErrorMsg: errMsg})
		return
	}

	// Build filter from request - 从请求构建过滤条件
	filter := &EventFilter{
		Process:   req.Process,
		Type:      req.Type,
		StartTime: startTime,
		EndTime:   endTime,
		Page:      req.Current,
		PageSize:  req.Size,
	}

	events, total, err := h.repo.ListEvents(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ListEventsResponse{ErrorMsg: err.Error()})
		return
	}

	// Convert to response format - 转换为响应格式
	infos := make([]*EventInfo, len(events))
	for i, event := range events {
		infos[i] = event.ToEventInfo()
	}

	c.JSON(http.StatusOK, ListEventsResponse{
		Data: &struct {
			Total  int64        `json:"total"`
			Events []*EventInfo `json:"events"`
		}{
			Total:  total,
			Events: infos,
		},
	})
}

// ==================== Helper Methods 辅助方法 ====================

// parseTimeRange parses optional RFC3339 start/end query values.
// parseTimeRange 解析可选的 RFC3339 开始/结束查询值。
func parseTimeRange(start, end string) (*time.Time, *time.Time, string) {
	var startTime, endTime *time.Time
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, nil, "无效的开始时间格式，请使用 RFC3339 格式 / Invalid start_time format, use RFC3339"
		}
		startTime = &t
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return nil, nil, "无效的结束时间格式，请使用 RFC3339 格式 / Invalid end_time format, use RFC3339"
		}
		// 结束时间规范为该日在 UTC 的当日 23:59:59.999，避免选"今天"时漏掉当天数据
		utc := t.UTC()
		y, m, d := utc.Date()
		endOfDay := time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)
		endTime = &endOfDay
	}
	return startTime, endTime, ""
}

// getStatusCodeForError returns the appropriate HTTP status code for an error.
// getStatusCodeForError 根据错误返回适当的 HTTP 状态码。
func (h *Handler) getStatusCodeForError(err error) int {
	switch {
	case errors.Is(err, ErrRunNotFound), errors.Is(err, ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRunIDDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrRunIDEmpty),
		errors.Is(err, ErrProcessEmpty),
		errors.Is(err, ErrCommandEmpty),
		errors.Is(err, ErrEventTypeEmpty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

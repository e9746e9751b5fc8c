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

// Package run provides run history and event logging for Procmate processes.
// run 包提供 Procmate 进程的运行历史和事件日志功能。
package run

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// RunStatus represents the lifecycle status of a process run.
// RunStatus 表示一次进程运行的生命周期状态。
type RunStatus string

const (
	// RunStatusRunning indicates the process is currently running.
	// RunStatusRunning 表示进程正在运行中。
	RunStatusRunning RunStatus = "running"
	// RunStatusStopped indicates the process was stopped on request.
	// RunStatusStopped 表示进程按要求停止。
	RunStatusStopped RunStatus = "stopped"
	// RunStatusCrashed indicates the process exited unexpectedly.
	// RunStatusCrashed 表示进程意外退出。
	RunStatusCrashed RunStatus = "crashed"
)

// RunDetails represents the JSON details attached to a run record.
// RunDetails 表示附加到运行记录的 JSON 详情。
type RunDetails map[string]interface{}

// Value implements the driver.Valuer interface for database storage.
// Value 实现 driver.Valuer 接口用于数据库存储。
func (d RunDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements the sql.Scanner interface for database retrieval.
// Scan 实现 sql.Scanner 接口用于数据库读取。
func (d *RunDetails) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("run: failed to scan RunDetails - expected []byte")
	}
	return json.Unmarshal(bytes, d)
}

// ProcessRun represents one launch of a Procfile process instance.
// ProcessRun 表示 Procfile 进程实例的一次启动。
type ProcessRun struct {
	ID          uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID       string     `json:"run_id" gorm:"size:50;uniqueIndex;not null"`
	Process     string     `json:"process" gorm:"size:100;not null;index"`
	ProcessType string     `json:"process_type" gorm:"size:50;not null;index"`
	Command     string     `json:"command" gorm:"type:text;not null"`
	PID         int        `json:"pid"`
	Port        int        `json:"port"`
	Status      RunStatus  `json:"status" gorm:"size:20;not null;index"`
	ExitCode    *int       `json:"exit_code"`
	Restarts    int        `json:"restarts" gorm:"default:0"`
	Details     RunDetails `json:"details" gorm:"type:json"`
	StartedAt   time.Time  `json:"started_at" gorm:"not null;index"`
	EndedAt     *time.Time `json:"ended_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the ProcessRun model.
// TableName 指定 ProcessRun 模型的表名。
func (ProcessRun) TableName() string {
	return "process_runs"
}

// EventLog represents a process lifecycle event persisted for later inspection.
// EventLog 表示为事后检查而持久化的进程生命周期事件。
type EventLog struct {
	ID        uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID   string     `json:"event_id" gorm:"size:50;uniqueIndex;not null"`
	Process   string     `json:"process" gorm:"size:100;not null;index"`
	Type      string     `json:"type" gorm:"size:30;not null;index"`
	PID       int        `json:"pid"`
	ExitCode  int        `json:"exit_code"`
	Message   string     `json:"message" gorm:"type:text"`
	Details   RunDetails `json:"details" gorm:"type:json"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for the EventLog model.
// TableName 指定 EventLog 模型的表名。
func (EventLog) TableName() string {
	return "process_events"
}

// RunFilter represents filter criteria for querying process runs.
// RunFilter 表示查询进程运行的过滤条件。
type RunFilter struct {
	RunID       string     `json:"run_id"`
	Process     string     `json:"process"`
	ProcessType string     `json:"process_type"`
	Status      RunStatus  `json:"status"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Page        int        `json:"page"`
	PageSize    int        `json:"page_size"`
}

// EventFilter represents filter criteria for querying event logs.
// EventFilter 表示查询事件日志的过滤条件。
type EventFilter struct {
	Process   string     `json:"process"`
	Type      string     `json:"type"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

// RunInfo represents run information for API responses.
// RunInfo 表示 API 响应的运行信息。
type RunInfo struct {
	ID          uint       `json:"id"`
	RunID       string     `json:"run_id"`
	Process     string     `json:"process"`
	ProcessType string     `json:"process_type"`
	Command     string     `json:"command"`
	PID         int        `json:"pid"`
	Port        int        `json:"port"`
	Status      RunStatus  `json:"status"`
	ExitCode    *int       `json:"exit_code"`
	Restarts    int        `json:"restarts"`
	Details     RunDetails `json:"details"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at"`
}

// ToRunInfo converts a ProcessRun to RunInfo.
// ToRunInfo 将 ProcessRun 转换为 RunInfo。
func (r *ProcessRun) ToRunInfo() *RunInfo {
	return &RunInfo{
		ID:          r.ID,
		RunID:       r.RunID,
		Process:     r.Process,
		ProcessType: r.ProcessType,
		Command:     r.Command,
		PID:         r.PID,
		Port:        r.Port,
		Status:      r.Status,
		ExitCode:    r.ExitCode,
		Restarts:    r.Restarts,
		Details:     r.Details,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
	}
}

// EventInfo represents event information for API responses.
// EventInfo 表示 API 响应的事件信息。
type EventInfo struct {
	ID        uint       `json:"id"`
	EventID   string     `json:"event_id"`
	Process   string     `json:"process"`
	Type      string     `json:"type"`
	PID       int        `json:"pid"`
	ExitCode  int        `json:"exit_code"`
	Message   string     `json:"message"`
	Details   RunDetails `json:"details"`
	CreatedAt time.Time  `json:"created_at"`
}

// ToEventInfo converts an EventLog to EventInfo.
// ToEventInfo 将 EventLog 转换为 EventInfo。
func (e *EventLog) ToEventInfo() *EventInfo {
	return &EventInfo{
		ID:        e.ID,
		EventID:   e.EventID,
		Process:   e.Process,
		Type:      e.Type,
		PID:       e.PID,
		ExitCode:  e.ExitCode,
		Message:   e.Message,
		Details:   e.Details,
		CreatedAt: e.CreatedAt,
	}
}

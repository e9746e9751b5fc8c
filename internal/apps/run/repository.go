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
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository provides data access operations for ProcessRun and EventLog entities.
// Repository 提供 ProcessRun 和 EventLog 实体的数据访问操作。
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository instance.
// NewRepository 创建一个新的 Repository 实例。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ============================================================================
// ProcessRun Operations - 运行记录操作
// ============================================================================

// CreateRun creates a new run record in the database.
// CreateRun 在数据库中创建新的运行记录。
// Returns ErrRunIDDuplicate if a run with the same run ID already exists.
// 如果具有相同运行 ID 的记录已存在，则返回 ErrRunIDDuplicate。
func (r *Repository) CreateRun(ctx context.Context, rec *ProcessRun) error {
	// Validate required fields
	// 验证必填字段
	if rec.RunID == "" {
		return ErrRunIDEmpty
	}
	if rec.Process == "" {
		return ErrProcessEmpty
	}
	if rec.Command == "" {
		return ErrCommandEmpty
	}

	// Check for duplicate run ID
	// 检查运行 ID 是否重复
	var count int64
	if err := r.db.WithContext(ctx).Model(&ProcessRun{}).Where("run_id = ?", rec.RunID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrRunIDDuplicate
	}

	return r.db.WithContext(ctx).Create(rec).Error
}

// GetRunByRunID retrieves a run record by its run ID.
// GetRunByRunID 通过运行 ID 获取运行记录。
// Returns ErrRunNotFound if the run does not exist.
// 如果运行记录不存在，则返回 ErrRunNotFound。
func (r *Repository) GetRunByRunID(ctx context.Context, runID string) (*ProcessRun, error) {
	var rec ProcessRun
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// GetLatestRun retrieves the most recent run for a process instance.
// GetLatestRun 获取进程实例最近的一次运行。
func (r *Repository) GetLatestRun(ctx context.Context, process string) (*ProcessRun, error) {
	var rec ProcessRun
	if err := r.db.WithContext(ctx).Where("process = ?", process).
		Order("started_at DESC").First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListRuns retrieves run records based on filter criteria with pagination.
// ListRuns 根据过滤条件和分页获取运行记录列表。
// Returns the list of runs and total count.
// 返回运行记录列表和总数。
func (r *Repository) ListRuns(ctx context.Context, filter *RunFilter) ([]*ProcessRun, int64, error) {
	query := r.db.WithContext(ctx).Model(&ProcessRun{})

	// Apply filters - 应用过滤条件
	if filter != nil {
		if filter.RunID != "" {
			query = query.Where("run_id = ?", filter.RunID)
		}
		if filter.Process != "" {
			query = query.Where("process = ?", filter.Process)
		}
		if filter.ProcessType != "" {
			query = query.Where("process_type = ?", filter.ProcessType)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.StartTime != nil {
			query = query.Where("started_at >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			query = query.Where("started_at <= ?", *filter.EndTime)
		}
	}

	// Get total count - 获取总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination - 应用分页
	if filter != nil && filter.PageSize > 0 {
		offset := 0
		if filter.Page > 0 {
			offset = (filter.Page - 1) * filter.PageSize
		}
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Execute query - 执行查询
	var runs []*ProcessRun
	if err := query.Order("started_at DESC").Find(&runs).Error; err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

// FinishRun marks a run as ended with the given status and exit code.
// FinishRun 以给定的状态和退出码标记一次运行结束。
// Returns ErrRunNotFound if the run does not exist.
// 如果运行记录不存在，则返回 ErrRunNotFound。
func (r *Repository) FinishRun(ctx context.Context, runID string, status RunStatus, exitCode int) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&ProcessRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":    status,
			"exit_code": exitCode,
			"ended_at":  &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// IncrementRestarts bumps the restart counter of a run record.
// IncrementRestarts 递增运行记录的重启计数。
func (r *Repository) IncrementRestarts(ctx context.Context, runID string) error {
	result := r.db.WithContext(ctx).Model(&ProcessRun{}).
		Where("run_id = ?", runID).
		UpdateColumn("restarts", gorm.Expr("restarts + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// DeleteRunsBefore deletes run records started before the specified time.
// DeleteRunsBefore 删除指定时间之前启动的运行记录。
// This is useful for implementing retention policies.
// 这对于实现保留策略很有用。
func (r *Repository) DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("started_at < ?", before).Delete(&ProcessRun{})
	return result.RowsAffected, result.Error
}

// ============================================================================
// EventLog Operations - 事件日志操作
// ============================================================================

// CreateEvent creates a new event record in the database.
// CreateEvent 在数据库中创建新的事件记录。
func (r *Repository) CreateEvent(ctx context.Context, event *EventLog) error {
	// Validate required fields
	// 验证必填字段
	if event.Process == "" {
		return ErrProcessEmpty
	}
	if event.Type == "" {
		return ErrEventTypeEmpty
	}

	return r.db.WithContext(ctx).Create(event).Error
}

// ListEvents retrieves event records based on filter criteria with pagination.
// ListEvents 根据过滤条件和分页获取事件记录列表。
// Returns the list of events and total count.
// 返回事件记录列表和总数。
func (r *Repository) ListEvents(ctx context.Context, filter *EventFilter) ([]*EventLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&EventLog{})

	// Apply filters - 应用过滤条件
	if filter != nil {
		if filter.Process != "" {
			query = query.Where("process = ?", filter.Process)
		}
		if filter.Type != "" {
			query = query.Where("type = ?", filter.Type)
		}
		if filter.StartTime != nil {
			query = query.Where("created_at >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			query = query.Where("created_at <= ?", *filter.EndTime)
		}
	}

	// Get total count - 获取总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination - 应用分页
	if filter != nil && filter.PageSize > 0 {
		offset := 0
		if filter.Page > 0 {
			offset = (filter.Page - 1) * filter.PageSize
		}
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Execute query - 执行查询
	var logs []*EventLog
	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// DeleteEventsBefore deletes event records created before the specified time.
// DeleteEventsBefore 删除指定时间之前创建的事件记录。
func (r *Repository) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&EventLog{})
	return result.RowsAffected, result.Error
}

// ExistsByRunID checks if a run with the given run ID exists.
// ExistsByRunID 检查具有给定运行 ID 的记录是否存在。
func (r *Repository) ExistsByRunID(ctx context.Context, runID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ProcessRun{}).Where("run_id = ?", runID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

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

// Package restart provides automatic process restart functionality for Procmate.
// restart 包提供 Procmate 的自动进程重启功能。
//
// This package provides:
// 此包提供：
// - Automatic restart on process crash / 进程崩溃时自动重启
// - Restart count limiting / 重启次数限制
// - Cooldown period management / 冷却时间管理
// - Restart history tracking / 重启历史跟踪
package restart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/procmate/procmate/internal/process"
	"go.uber.org/zap"
)

// ErrRestartGivenUp indicates the restart policy declined to restart:
// the limit was reached within the window or the instance is cooling down.
// ErrRestartGivenUp 表示重启策略放弃重启：
// 窗口内已达限制或实例正在冷却中。
var ErrRestartGivenUp = errors.New("restart limit reached or in cooldown / 已达重启限制或在冷却中")

// Default configuration values
// 默认配置值
const (
	DefaultRestartDelay   = 10 * time.Second // 默认重启延迟 / Default restart delay
	DefaultMaxRestarts    = 3                // 默认最大重启次数 / Default max restarts
	DefaultTimeWindow     = 5 * time.Minute  // 默认时间窗口 / Default time window
	DefaultCooldownPeriod = 30 * time.Minute // 默认冷却时间 / Default cooldown period
)

// Config holds the restart policy configuration
// Config 保存重启策略配置
type Config struct {
	Enabled        bool          `json:"enabled"`         // 是否启用自动重启 / Enable auto restart
	RestartDelay   time.Duration `json:"restart_delay"`   // 重启延迟 / Restart delay
	MaxRestarts    int           `json:"max_restarts"`    // 最大重启次数 / Max restart count
	TimeWindow     time.Duration `json:"time_window"`     // 时间窗口 / Time window
	CooldownPeriod time.Duration `json:"cooldown_period"` // 冷却时间 / Cooldown period
}

// DefaultConfig returns the default restart configuration
// DefaultConfig 返回默认重启配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		RestartDelay:   DefaultRestartDelay,
		MaxRestarts:    DefaultMaxRestarts,
		TimeWindow:     DefaultTimeWindow,
		CooldownPeriod: DefaultCooldownPeriod,
	}
}

// History tracks restart history for a process instance
// History 跟踪进程实例的重启历史
type History struct {
	ProcessName   string      `json:"process_name"`
	RestartCount  int         `json:"restart_count"`
	LastRestart   time.Time   `json:"last_restart"`
	WindowStart   time.Time   `json:"window_start"`
	CooldownUntil time.Time   `json:"cooldown_until"`
	RestartTimes  []time.Time `json:"restart_times"` // 重启时间列表 / List of restart times
}

// Callback is called when a restart is performed
// Callback 在执行重启时被调用
type Callback func(processName string, success bool, err error)

// AutoRestarter handles automatic process restart on crash
// AutoRestarter 处理进程崩溃时的自动重启
type AutoRestarter struct {
	manager *process.Manager
	config  *Config
	history map[string]*History
	cb      Callback
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewAutoRestarter creates a new AutoRestarter instance
// NewAutoRestarter 创建一个新的 AutoRestarter 实例
func NewAutoRestarter(m *process.Manager, logger *zap.Logger) *AutoRestarter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoRestarter{
		manager: m,
		config:  DefaultConfig(),
		history: make(map[string]*History),
		logger:  logger,
	}
}

// SetConfig sets the restart configuration
// SetConfig 设置重启配置
func (r *AutoRestarter) SetConfig(config *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = config
	r.logger.Info("restart policy updated",
		zap.Bool("enabled", config.Enabled),
		zap.Duration("delay", config.RestartDelay),
		zap.Int("max_restarts", config.MaxRestarts),
		zap.Duration("window", config.TimeWindow),
		zap.Duration("cooldown", config.CooldownPeriod))
}

// SetCallback sets the restart callback
// SetCallback 设置重启回调
func (r *AutoRestarter) SetCallback(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

// OnProcessCrashed handles a process crash event: wait out the restart
// delay, re-check the policy, then restart with the original parameters.
// OnProcessCrashed 处理进程崩溃事件：等待重启延迟，重新检查策略，
// 然后用原始参数重启。
func (r *AutoRestarter) OnProcessCrashed(ctx context.Context, name string, params *process.StartParams) error {
	r.mu.RLock()
	config := r.config
	r.mu.RUnlock()

	if !config.Enabled {
		r.logger.Debug("auto restart disabled, skipping", zap.String("process", name))
		return nil
	}

	// Check if should restart / 检查是否应该重启
	if !r.ShouldRestart(name) {
		r.logger.Warn("restart limit reached or in cooldown", zap.String("process", name))
		return ErrRestartGivenUp
	}

	// Wait for restart delay / 等待重启延迟
	r.logger.Info("waiting before restart",
		zap.String("process", name), zap.Duration("delay", config.RestartDelay))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(config.RestartDelay):
	}

	// Re-check enabled after delay: the policy may have been disabled
	// (e.g. the supervisor is shutting down).
	// 延迟后再次检查是否启用：策略可能已被禁用（例如监管器正在关闭）。
	r.mu.RLock()
	stillEnabled := r.config.Enabled
	r.mu.RUnlock()
	if !stillEnabled {
		r.logger.Debug("auto restart disabled after delay, skipping", zap.String("process", name))
		return nil
	}

	// Perform restart / 执行重启
	return r.DoRestart(ctx, name, params)
}

// ShouldRestart checks if a process instance should be restarted
// ShouldRestart 检查进程实例是否应该重启
func (r *AutoRestarter) ShouldRestart(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.config.Enabled {
		return false
	}

	history, exists := r.history[name]
	if !exists {
		// No history, can restart / 无历史，可以重启
		return true
	}

	now := time.Now()

	// Check if in cooldown / 检查是否在冷却中
	if now.Before(history.CooldownUntil) {
		r.logger.Debug("process in cooldown",
			zap.String("process", name), zap.Time("until", history.CooldownUntil))
		return false
	}

	// Check if cooldown has passed and reset counter / 检查冷却是否已过并重置计数器
	if now.After(history.CooldownUntil) && history.CooldownUntil.After(history.WindowStart) {
		// Cooldown passed, reset counter / 冷却已过，重置计数器
		r.resetHistoryLocked(name)
		return true
	}

	// Count restarts within time window / 计算时间窗口内的重启次数
	windowStart := now.Add(-r.config.TimeWindow)
	restartsInWindow := 0
	for _, t := range history.RestartTimes {
		if t.After(windowStart) {
			restartsInWindow++
		}
	}

	// Check if max restarts reached / 检查是否达到最大重启次数
	if restartsInWindow >= r.config.MaxRestarts {
		// Enter cooldown / 进入冷却
		history.CooldownUntil = now.Add(r.config.CooldownPeriod)
		r.logger.Warn("max restarts reached, entering cooldown",
			zap.String("process", name),
			zap.Int("max_restarts", r.config.MaxRestarts),
			zap.Time("until", history.CooldownUntil))
		return false
	}

	return true
}

// DoRestart performs the actual restart with the same start parameters
// DoRestart 使用相同的启动参数执行实际的重启
func (r *AutoRestarter) DoRestart(ctx context.Context, name string, params *process.StartParams) error {
	r.mu.RLock()
	cb := r.cb
	r.mu.RUnlock()

	r.logger.Info("restarting process", zap.String("process", name))

	err := r.manager.StartProcess(ctx, name, params)
	if err != nil {
		if errors.Is(err, process.ErrProcessAlreadyRunning) {
			// Someone beat us to it, treat as success / 已被他人重启，视为成功
			if cb != nil {
				cb(name, true, nil)
			}
			return nil
		}
		r.recordRestart(name)
		r.logger.Error("restart failed", zap.String("process", name), zap.Error(err))
		if cb != nil {
			cb(name, false, err)
		}
		return err
	}

	r.recordRestart(name)
	r.logger.Info("process restarted", zap.String("process", name))
	if cb != nil {
		cb(name, true, nil)
	}

	return nil
}

// recordRestart records a restart in history
// recordRestart 在历史中记录重启
func (r *AutoRestarter) recordRestart(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	history, exists := r.history[name]
	if !exists {
		history = &History{
			ProcessName:  name,
			WindowStart:  now,
			RestartTimes: make([]time.Time, 0),
		}
		r.history[name] = history
	}

	history.RestartCount++
	history.LastRestart = now
	history.RestartTimes = append(history.RestartTimes, now)

	// Clean up old restart times / 清理旧的重启时间
	windowStart := now.Add(-r.config.TimeWindow)
	var newTimes []time.Time
	for _, t := range history.RestartTimes {
		if t.After(windowStart) {
			newTimes = append(newTimes, t)
		}
	}
	history.RestartTimes = newTimes
}

// ResetRestartCount resets the restart count for a process instance
// ResetRestartCount 重置进程实例的重启计数
func (r *AutoRestarter) ResetRestartCount(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetHistoryLocked(name)
}

// resetHistoryLocked resets history (must be called with lock held)
// resetHistoryLocked 重置历史（必须在持有锁的情况下调用）
func (r *AutoRestarter) resetHistoryLocked(name string) {
	if history, exists := r.history[name]; exists {
		history.RestartCount = 0
		history.RestartTimes = make([]time.Time, 0)
		history.WindowStart = time.Now()
		history.CooldownUntil = time.Time{}
	}
}

// GetHistory returns a copy of the restart history for an instance
// GetHistory 返回实例重启历史的副本
func (r *AutoRestarter) GetHistory(name string) *History {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if history, exists := r.history[name]; exists {
		historyCopy := *history
		historyCopy.RestartTimes = make([]time.Time, len(history.RestartTimes))
		copy(historyCopy.RestartTimes, history.RestartTimes)
		return &historyCopy
	}
	return nil
}

// GetConfig returns the current configuration
// GetConfig 返回当前配置
func (r *AutoRestarter) GetConfig() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	configCopy := *r.config
	return &configCopy
}

// IsInCooldown checks if a process instance is in cooldown
// IsInCooldown 检查进程实例是否在冷却中
func (r *AutoRestarter) IsInCooldown(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if history, exists := r.history[name]; exists {
		return time.Now().Before(history.CooldownUntil)
	}
	return false
}

// IsEnabled returns whether auto restart is enabled
// IsEnabled 返回是否启用了自动重启
func (r *AutoRestarter) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Enabled
}

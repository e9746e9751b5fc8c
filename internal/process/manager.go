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

// Package process provides process lifecycle management for Procmate.
// process 包提供 Procmate 的进程生命周期管理功能。
//
// This package provides:
// 此包提供：
// - Start, Stop, Restart methods / 启动、停止、重启方法
// - Process status monitoring / 进程状态监控
// - Graceful shutdown with timeout / 带超时的优雅关闭
// - Per-process output capture / 进程输出捕获
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Common errors for process management
// 进程管理的常见错误
var (
	// ErrProcessNotFound indicates the process was not found
	// ErrProcessNotFound 表示进程未找到
	ErrProcessNotFound = errors.New("process not found")

	// ErrProcessAlreadyRunning indicates the process is already running
	// ErrProcessAlreadyRunning 表示进程已在运行
	ErrProcessAlreadyRunning = errors.New("process is already running")

	// ErrProcessNotRunning indicates the process is not running
	// ErrProcessNotRunning 表示进程未运行
	ErrProcessNotRunning = errors.New("process is not running")

	// ErrStartFailed indicates the process failed to start
	// ErrStartFailed 表示进程启动失败
	ErrStartFailed = errors.New("process failed to start")

	// ErrEmptyCommand indicates an empty launch command
	// ErrEmptyCommand 表示启动命令为空
	ErrEmptyCommand = errors.New("empty launch command")
)

// ProcessStatus represents the status of a managed process
// ProcessStatus 表示托管进程的状态
type ProcessStatus string

const (
	// StatusRunning indicates the process is running
	// StatusRunning 表示进程正在运行
	StatusRunning ProcessStatus = "running"

	// StatusStopped indicates the process is stopped
	// StatusStopped 表示进程已停止
	StatusStopped ProcessStatus = "stopped"

	// StatusStarting indicates the process is starting
	// StatusStarting 表示进程正在启动
	StatusStarting ProcessStatus = "starting"

	// StatusStopping indicates the process is stopping
	// StatusStopping 表示进程正在停止
	StatusStopping ProcessStatus = "stopping"

	// StatusCrashed indicates the process exited without being asked to
	// StatusCrashed 表示进程在未被要求的情况下退出
	StatusCrashed ProcessStatus = "crashed"

	// StatusError indicates the process could not be launched
	// StatusError 表示进程无法被启动
	StatusError ProcessStatus = "error"
)

// Default configuration values
// 默认配置值
const (
	// DefaultStartTimeout is the default time allowed for an instance to
	// settle out of a transitional status (60 seconds)
	// DefaultStartTimeout 是实例从过渡状态稳定下来的默认时限（60秒）
	DefaultStartTimeout = 60 * time.Second

	// DefaultGracefulTimeout is the default timeout for graceful shutdown (30 seconds)
	// DefaultGracefulTimeout 是优雅关闭的默认超时时间（30秒）
	DefaultGracefulTimeout = 30 * time.Second

	// DefaultMonitorInterval is the default interval for process monitoring (5 seconds)
	// DefaultMonitorInterval 是进程监控的默认间隔（5秒）
	DefaultMonitorInterval = 5 * time.Second

	// DefaultLogTailLines is the default number of log lines returned by log queries
	// DefaultLogTailLines 是日志查询默认返回的行数
	DefaultLogTailLines = 100
)

// ManagedProcess represents a process managed by the Manager
// ManagedProcess 表示由 Manager 管理的进程
type ManagedProcess struct {
	// Name is the instance name, e.g. "web.1"
	// Name 是实例名称，例如 "web.1"
	Name string `json:"name"`

	// Command is the shell command the instance runs
	// Command 是实例运行的 shell 命令
	Command string `json:"command"`

	// PID is the process ID
	// PID 是进程 ID
	PID int `json:"pid"`

	// Status is the current status of the process
	// Status 是进程的当前状态
	Status ProcessStatus `json:"status"`

	// StartTime is when the process was started
	// StartTime 是进程启动的时间
	StartTime time.Time `json:"start_time"`

	// Uptime is the duration the process has been running
	// Uptime 是进程运行的持续时间
	Uptime time.Duration `json:"uptime"`

	// CPUUsage is the CPU usage percentage (0-100)
	// CPUUsage 是 CPU 使用率百分比（0-100）
	CPUUsage float64 `json:"cpu_usage"`

	// MemoryUsage is the memory usage in bytes
	// MemoryUsage 是内存使用量（字节）
	MemoryUsage int64 `json:"memory_usage"`

	// LogFile is where the instance's stdout/stderr goes
	// LogFile 是实例的标准输出/标准错误写入的文件
	LogFile string `json:"log_file"`

	// ExitCode is the exit code of the last run (-1 while running)
	// ExitCode 是最近一次运行的退出码（运行中为 -1）
	ExitCode int `json:"exit_code"`

	// LastError is the last error encountered
	// LastError 是最后遇到的错误
	LastError string `json:"last_error,omitempty"`

	// stopRequested marks a stop initiated by the manager, so the
	// exit is not reported as a crash
	// stopRequested 标记由管理器发起的停止，退出不会被当作崩溃上报
	stopRequested bool

	// done is closed once this incarnation's exit has been reaped and
	// its exit event dispatched; nil when the launch never succeeded
	// done 在本次运行的退出被回收且退出事件已分发后关闭；
	// 启动未成功时为 nil
	done chan struct{}

	// cmd is the underlying exec.Cmd (internal use)
	// cmd 是底层的 exec.Cmd（内部使用）
	cmd *exec.Cmd

	// logWriter is the open log file handle (internal use)
	// logWriter 是打开的日志文件句柄（内部使用）
	logWriter *os.File

	// mu protects the process state
	// mu 保护进程状态
	mu sync.RWMutex
}

// ProcessInfo contains information about a process for external use
// ProcessInfo 包含用于外部使用的进程信息
type ProcessInfo struct {
	Name        string        `json:"name"`
	Command     string        `json:"command"`
	PID         int           `json:"pid"`
	Status      ProcessStatus `json:"status"`
	StartTime   time.Time     `json:"start_time"`
	Uptime      time.Duration `json:"uptime"`
	CPUUsage    float64       `json:"cpu_usage"`
	MemoryUsage int64         `json:"memory_usage"`
	LogFile     string        `json:"log_file"`
	ExitCode    int           `json:"exit_code"`
	LastError   string        `json:"last_error,omitempty"`
}

// StartParams contains parameters for starting a process
// StartParams 包含启动进程的参数
type StartParams struct {
	// Command is the shell command to run, executed verbatim
	// Command 是要运行的 shell 命令，原样执行
	Command string `json:"command"`

	// Dir is the working directory (optional, defaults to the current directory)
	// Dir 是工作目录（可选，默认为当前目录）
	Dir string `json:"dir,omitempty"`

	// LogDir is where the instance log file is written
	// LogDir 是实例日志文件的写入目录
	LogDir string `json:"log_dir"`

	// Environment variables to set on top of the parent environment
	// 在父环境之上设置的环境变量
	Environment map[string]string `json:"environment,omitempty"`
}

// StopParams contains parameters for stopping a process
// StopParams 包含停止进程的参数
type StopParams struct {
	// Timeout is the timeout for graceful shutdown (defaults to the manager's)
	// Timeout 是优雅关闭的超时时间（默认为管理器的设置）
	Timeout time.Duration `json:"timeout,omitempty"`
}

// EventHandler is a callback for process events
// EventHandler 是进程事件的回调
type EventHandler func(name string, event Event, info *ProcessInfo)

// Event represents a process lifecycle event
// Event 表示进程生命周期事件
type Event string

const (
	// EventStarted indicates the process has started
	// EventStarted 表示进程已启动
	EventStarted Event = "started"

	// EventStopped indicates the process was stopped on request
	// EventStopped 表示进程按要求停止
	EventStopped Event = "stopped"

	// EventCrashed indicates the process exited unexpectedly
	// EventCrashed 表示进程意外退出
	EventCrashed Event = "crashed"
)

// Manager supervises the processes declared in a Procfile
// Manager 监管 Procfile 中声明的进程
type Manager struct {
	// processes stores managed processes by instance name
	// processes 按实例名称存储托管进程
	processes sync.Map

	// monitorCtx is the context for the monitor goroutine
	// monitorCtx 是监控 goroutine 的上下文
	monitorCtx context.Context

	// monitorCancel cancels the monitor goroutine
	// monitorCancel 取消监控 goroutine
	monitorCancel context.CancelFunc

	// monitorInterval is the interval for metric refresh
	// monitorInterval 是指标刷新的间隔
	monitorInterval time.Duration

	// startTimeout bounds how long transitional statuses may last
	// startTimeout 限制过渡状态可持续的时长
	startTimeout time.Duration

	// gracefulTimeout is the timeout for graceful shutdown
	// gracefulTimeout 是优雅关闭的超时时间
	gracefulTimeout time.Duration

	// eventHandler is called when process events occur
	// eventHandler 在进程事件发生时被调用
	eventHandler EventHandler

	// mu protects manager state
	// mu 保护管理器状态
	mu sync.RWMutex

	// running indicates if the manager is running
	// running 表示管理器是否正在运行
	running bool
}

// NewManager creates a new Manager instance
// NewManager 创建一个新的 Manager 实例
func NewManager() *Manager {
	return &Manager{
		monitorInterval: DefaultMonitorInterval,
		startTimeout:    DefaultStartTimeout,
		gracefulTimeout: DefaultGracefulTimeout,
	}
}

// SetStartTimeout sets the settle timeout for transitional statuses
// SetStartTimeout 设置过渡状态的稳定超时时间
func (m *Manager) SetStartTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTimeout = timeout
}

// SetMonitorInterval sets the monitoring interval
// SetMonitorInterval 设置监控间隔
func (m *Manager) SetMonitorInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitorInterval = interval
}

// SetGracefulTimeout sets the graceful shutdown timeout
// SetGracefulTimeout 设置优雅关闭超时时间
func (m *Manager) SetGracefulTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gracefulTimeout = timeout
}

// SetEventHandler sets the event handler callback
// SetEventHandler 设置事件处理回调
func (m *Manager) SetEventHandler(handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventHandler = handler
}

// Start starts the manager and begins metric monitoring
// Start 启动管理器并开始指标监控
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil // Already running / 已经在运行
	}

	m.monitorCtx, m.monitorCancel = context.WithCancel(ctx)
	m.running = true

	// Start the monitor goroutine / 启动监控 goroutine
	go m.monitorLoop()

	return nil
}

// Stop stops the manager (does not stop managed processes)
// Stop 停止管理器（不停止托管进程）
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	if m.monitorCancel != nil {
		m.monitorCancel()
	}
	m.running = false

	return nil
}

// monitorLoop is the main metric refresh loop
// monitorLoop 是主指标刷新循环
func (m *Manager) monitorLoop() {
	ticker := time.NewTicker(m.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.monitorCtx.Done():
			return
		case <-ticker.C:
			m.refreshAllMetrics()
		}
	}
}

// refreshAllMetrics updates uptime, CPU and memory of running processes
// refreshAllMetrics 更新运行中进程的运行时长、CPU 和内存
func (m *Manager) refreshAllMetrics() {
	m.processes.Range(func(key, value interface{}) bool {
		proc := value.(*ManagedProcess)

		proc.mu.Lock()
		defer proc.mu.Unlock()

		if proc.Status != StatusRunning || proc.PID <= 0 {
			return true
		}

		proc.Uptime = time.Since(proc.StartTime)
		cpu, mem := getProcessMetrics(proc.PID)
		proc.CPUUsage = cpu
		proc.MemoryUsage = mem

		return true
	})
}

// snapshotLocked copies process state into a ProcessInfo.
// The caller must hold proc.mu (read or write).
// snapshotLocked 将进程状态复制到 ProcessInfo。
// 调用者必须持有 proc.mu（读锁或写锁）。
func snapshotLocked(proc *ManagedProcess) *ProcessInfo {
	return &ProcessInfo{
		Name:        proc.Name,
		Command:     proc.Command,
		PID:         proc.PID,
		Status:      proc.Status,
		StartTime:   proc.StartTime,
		Uptime:      proc.Uptime,
		CPUUsage:    proc.CPUUsage,
		MemoryUsage: proc.MemoryUsage,
		LogFile:     proc.LogFile,
		ExitCode:    proc.ExitCode,
		LastError:   proc.LastError,
	}
}

// StartProcess launches a Procfile command as a managed instance
// StartProcess 将一条 Procfile 命令作为托管实例启动
//
// The command runs through the shell so quoting, pipes and variable
// references behave the way the manifest author expects. The child is
// placed in its own process group so the whole tree can be signaled.
// 命令通过 shell 运行，引号、管道和变量引用的行为与清单作者的预期一致。
// 子进程被放入独立的进程组，以便对整棵进程树发送信号。
func (m *Manager) StartProcess(ctx context.Context, name string, params *StartParams) error {
	if params == nil {
		return errors.New("start params is nil")
	}
	if strings.TrimSpace(params.Command) == "" {
		return ErrEmptyCommand
	}

	// Check if instance already exists and is running
	// 检查实例是否已存在且正在运行
	if existing, ok := m.processes.Load(name); ok {
		proc := existing.(*ManagedProcess)
		proc.mu.RLock()
		status := proc.Status
		proc.mu.RUnlock()

		if status == StatusRunning || status == StatusStarting {
			return ErrProcessAlreadyRunning
		}
	}

	// Create managed process / 创建托管进程
	proc := &ManagedProcess{
		Name:     name,
		Command:  params.Command,
		Status:   StatusStarting,
		ExitCode: -1,
	}
	m.processes.Store(name, proc)

	// Set up log capture / 设置日志捕获
	logDir := params.LogDir
	if logDir == "" {
		logDir = "./logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		proc.mu.Lock()
		proc.Status = StatusError
		proc.LastError = fmt.Sprintf("Failed to create log directory: %v / 创建日志目录失败：%v", err, err)
		proc.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	// One log file per instance, appended across restarts
	// 每个实例一个日志文件，重启后继续追加
	logFile := filepath.Join(logDir, fmt.Sprintf("%s.log", name))
	logWriter, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		proc.mu.Lock()
		proc.Status = StatusError
		proc.LastError = fmt.Sprintf("Failed to create log file: %v / 创建日志文件失败：%v", err, err)
		proc.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	// Build command / 构建命令
	cmd := buildStartCommand(params)
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter

	// Start the process / 启动进程
	if err := cmd.Start(); err != nil {
		logWriter.Close()
		proc.mu.Lock()
		proc.Status = StatusError
		proc.LastError = fmt.Sprintf("Failed to start process: %v / 启动进程失败：%v", err, err)
		proc.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	// Process started successfully / 进程启动成功
	proc.mu.Lock()
	proc.cmd = cmd
	proc.logWriter = logWriter
	proc.PID = cmd.Process.Pid
	proc.StartTime = time.Now()
	proc.Status = StatusRunning
	proc.LogFile = logFile
	proc.LastError = ""
	proc.stopRequested = false
	proc.done = make(chan struct{})
	proc.mu.Unlock()

	m.notifyEventLocked(name, EventStarted, proc)

	// Reap the child and report the exit / 回收子进程并上报退出
	go m.waitProcess(name, proc)

	return nil
}

// notifyEventLocked is notifyEvent with proc.mu taken for the snapshot
// notifyEventLocked 是在获取 proc.mu 后做快照的 notifyEvent
func (m *Manager) notifyEventLocked(name string, event Event, proc *ManagedProcess) {
	proc.mu.RLock()
	info := snapshotLocked(proc)
	proc.mu.RUnlock()

	m.mu.RLock()
	handler := m.eventHandler
	m.mu.RUnlock()

	if handler != nil {
		handler(name, event, info)
	}
}

// waitProcess blocks on cmd.Wait and updates status when the child exits
// waitProcess 阻塞在 cmd.Wait 上，并在子进程退出时更新状态
func (m *Manager) waitProcess(name string, proc *ManagedProcess) {
	err := proc.cmd.Wait()

	proc.mu.Lock()
	if proc.logWriter != nil {
		proc.logWriter.Close()
		proc.logWriter = nil
	}
	proc.Uptime = time.Since(proc.StartTime)
	proc.ExitCode = proc.cmd.ProcessState.ExitCode()
	proc.PID = 0

	requested := proc.stopRequested
	if requested {
		proc.Status = StatusStopped
	} else {
		proc.Status = StatusCrashed
		if err != nil {
			proc.LastError = fmt.Sprintf("Process exited unexpectedly: %v / 进程意外退出：%v", err, err)
		} else {
			proc.LastError = "Process exited unexpectedly / 进程意外退出"
		}
	}
	proc.mu.Unlock()

	if requested {
		m.notifyEventLocked(name, EventStopped, proc)
	} else {
		m.notifyEventLocked(name, EventCrashed, proc)
	}

	close(proc.done)
}

// StopProcess stops a managed instance
// StopProcess 停止托管实例
//
// SIGTERM is sent to the process group first; after the graceful
// timeout any survivors get SIGKILL.
// 先向进程组发送 SIGTERM；超过优雅超时后对仍存活的进程发送 SIGKILL。
func (m *Manager) StopProcess(ctx context.Context, name string, params *StopParams) error {
	value, ok := m.processes.Load(name)
	if !ok {
		return ErrProcessNotFound
	}
	proc := value.(*ManagedProcess)

	proc.mu.Lock()
	// Stopping something already dead is a no-op success
	// 停止已经死亡的进程是无操作的成功
	switch proc.Status {
	case StatusStopped, StatusCrashed, StatusError, StatusStopping:
		proc.mu.Unlock()
		return nil
	}
	if proc.Status != StatusRunning || proc.PID <= 0 {
		proc.mu.Unlock()
		return ErrProcessNotRunning
	}
	pid := proc.PID
	proc.Status = StatusStopping
	proc.stopRequested = true
	proc.mu.Unlock()

	// Set timeout / 设置超时
	m.mu.RLock()
	timeout := m.gracefulTimeout
	m.mu.RUnlock()
	if params != nil && params.Timeout > 0 {
		timeout = params.Timeout
	}

	// Signal the whole process group / 向整个进程组发送信号
	_ = signalGroup(pid, syscall.SIGTERM)

	// Wait for the process to exit gracefully / 等待进程优雅退出
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !isProcessAlive(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	// Force kill if still alive / 仍存活则强制杀死
	if isProcessAlive(pid) {
		_ = signalGroup(pid, syscall.SIGKILL)
	}

	return nil
}

// RestartProcess restarts a managed instance
// RestartProcess 重启托管实例
// Stop first, wait for complete exit, then start.
// 先执行停止操作、等待进程完全退出、再执行启动操作。
func (m *Manager) RestartProcess(ctx context.Context, name string, startParams *StartParams, stopParams *StopParams) error {
	// Always try to stop first / 始终先尝试停止
	if err := m.StopProcess(ctx, name, stopParams); err != nil &&
		!errors.Is(err, ErrProcessNotFound) && !errors.Is(err, ErrProcessNotRunning) {
		return err
	}

	// Wait for the reaper to record the exit / 等待回收协程记录退出
	if err := m.WaitExited(ctx, name); err != nil {
		return err
	}

	// Start the process / 启动进程
	return m.StartProcess(ctx, name, startParams)
}

// WaitExited blocks until the current incarnation of an instance has
// exited, been reaped and had its exit event dispatched. An unknown
// name, or one whose launch never succeeded, returns immediately.
// Bounded by the manager's start timeout.
// WaitExited 阻塞直到实例的当前运行已退出、被回收且退出事件已分发。
// 未知名称或启动从未成功的实例立即返回。受管理器的启动超时限制。
func (m *Manager) WaitExited(ctx context.Context, name string) error {
	value, ok := m.processes.Load(name)
	if !ok {
		return nil
	}
	proc := value.(*ManagedProcess)

	proc.mu.RLock()
	done := proc.done
	proc.mu.RUnlock()
	if done == nil {
		return nil
	}

	m.mu.RLock()
	timeout := m.startTimeout
	m.mu.RUnlock()
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("process %q did not exit within %s / 进程 %q 未在 %s 内退出", name, timeout, name, timeout)
	}
}

// GetStatus returns the status of a managed instance
// GetStatus 返回托管实例的状态
// Reports PID, uptime, CPU usage, memory usage and start time.
// 报告进程 PID、运行时长、CPU 使用率、内存使用量和启动时间。
func (m *Manager) GetStatus(ctx context.Context, name string) (*ProcessInfo, error) {
	value, ok := m.processes.Load(name)
	if !ok {
		return nil, ErrProcessNotFound
	}

	proc := value.(*ManagedProcess)
	proc.mu.Lock()
	defer proc.mu.Unlock()

	// Update metrics if running / 如果正在运行则更新指标
	if proc.Status == StatusRunning && proc.PID > 0 && isProcessAlive(proc.PID) {
		proc.Uptime = time.Since(proc.StartTime)
		cpu, mem := getProcessMetrics(proc.PID)
		proc.CPUUsage = cpu
		proc.MemoryUsage = mem
	}

	return snapshotLocked(proc), nil
}

// ListProcesses returns information about all managed instances
// ListProcesses 返回所有托管实例的信息
func (m *Manager) ListProcesses() []*ProcessInfo {
	var processes []*ProcessInfo

	m.processes.Range(func(key, value interface{}) bool {
		proc := value.(*ManagedProcess)
		proc.mu.RLock()
		processes = append(processes, snapshotLocked(proc))
		proc.mu.RUnlock()
		return true
	})

	return processes
}

// RemoveProcess removes an instance from management (does not stop it)
// RemoveProcess 从管理中移除实例（不停止它）
func (m *Manager) RemoveProcess(name string) {
	m.processes.Delete(name)
}

// IsRunning checks if an instance is running
// IsRunning 检查实例是否正在运行
func (m *Manager) IsRunning(name string) bool {
	value, ok := m.processes.Load(name)
	if !ok {
		return false
	}

	proc := value.(*ManagedProcess)
	proc.mu.RLock()
	defer proc.mu.RUnlock()

	return proc.Status == StatusRunning && proc.PID > 0 && isProcessAlive(proc.PID)
}

// StopAll stops all running instances
// StopAll 停止所有运行中的实例
func (m *Manager) StopAll(ctx context.Context) error {
	var lastErr error

	m.processes.Range(func(key, value interface{}) bool {
		name := key.(string)
		proc := value.(*ManagedProcess)

		proc.mu.RLock()
		status := proc.Status
		proc.mu.RUnlock()

		if status == StatusRunning {
			if err := m.StopProcess(ctx, name, nil); err != nil && !errors.Is(err, ErrProcessNotRunning) {
				lastErr = err
			}
		}
		return true
	})

	return lastErr
}

// Helper functions / 辅助函数

// buildStartCommand builds the exec.Cmd for a Procfile command
// buildStartCommand 为 Procfile 命令构建 exec.Cmd
func buildStartCommand(params *StartParams) *exec.Cmd {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", params.Command)
	} else {
		cmd = exec.Command("/bin/sh", "-c", params.Command)
		// Own process group, so signals reach the whole command tree
		// 独立进程组，信号可以到达整棵命令树
		setProcGroupAttr(cmd)
	}

	// Set working directory / 设置工作目录
	if params.Dir != "" {
		cmd.Dir = params.Dir
	}

	// Set environment variables / 设置环境变量
	cmd.Env = os.Environ()
	for k, v := range params.Environment {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	return cmd
}

// isProcessAlive checks if a process with the given PID is alive
// isProcessAlive 检查给定 PID 的进程是否存活
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0 to check
	// 在 Unix 上，FindProcess 总是成功，所以我们需要发送信号 0 来检查
	if runtime.GOOS != "windows" {
		err = process.Signal(syscall.Signal(0))
		return err == nil
	}

	// On Windows, we need a different approach
	// 在 Windows 上，我们需要不同的方法
	return checkProcessWindows(pid)
}

// checkProcessWindows checks if a process is alive on Windows
// checkProcessWindows 在 Windows 上检查进程是否存活
func checkProcessWindows(pid int) bool {
	// Use tasklist command to check if process exists
	// 使用 tasklist 命令检查进程是否存在
	cmd := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), strconv.Itoa(pid))
}

// getProcessMetrics gets CPU and memory usage for a process
// getProcessMetrics 获取进程的 CPU 和内存使用率
func getProcessMetrics(pid int) (cpuUsage float64, memoryUsage int64) {
	if runtime.GOOS == "linux" {
		return getProcessMetricsLinux(pid)
	} else if runtime.GOOS == "darwin" {
		return getProcessMetricsDarwin(pid)
	}
	return 0, 0
}

// getProcessMetricsLinux gets process metrics on Linux
// getProcessMetricsLinux 在 Linux 上获取进程指标
func getProcessMetricsLinux(pid int) (cpuUsage float64, memoryUsage int64) {
	// Read /proc/[pid]/stat for CPU info
	// 读取 /proc/[pid]/stat 获取 CPU 信息
	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	statData, err := os.ReadFile(statPath)
	if err != nil {
		return 0, 0
	}

	// Parse stat file / 解析 stat 文件
	fields := strings.Fields(string(statData))
	if len(fields) < 24 {
		return 0, 0
	}

	// Read /proc/[pid]/statm for memory info
	// 读取 /proc/[pid]/statm 获取内存信息
	statmPath := fmt.Sprintf("/proc/%d/statm", pid)
	statmData, err := os.ReadFile(statmPath)
	if err != nil {
		return 0, 0
	}

	statmFields := strings.Fields(string(statmData))
	if len(statmFields) >= 2 {
		// RSS is in pages, convert to bytes (assuming 4KB pages)
		// RSS 以页为单位，转换为字节（假设 4KB 页）
		rss, _ := strconv.ParseInt(statmFields[1], 10, 64)
		memoryUsage = rss * 4096
	}

	// CPU usage calculation would require sampling over time
	// CPU 使用率计算需要随时间采样
	// For now, return 0 as a placeholder
	// 目前返回 0 作为占位符
	return 0, memoryUsage
}

// getProcessMetricsDarwin gets process metrics on macOS
// getProcessMetricsDarwin 在 macOS 上获取进程指标
func getProcessMetricsDarwin(pid int) (cpuUsage float64, memoryUsage int64) {
	// Use ps command to get process info
	// 使用 ps 命令获取进程信息
	cmd := exec.Command("ps", "-o", "rss=,pcpu=", "-p", strconv.Itoa(pid))
	output, err := cmd.Output()
	if err != nil {
		return 0, 0
	}

	fields := strings.Fields(string(output))
	if len(fields) >= 2 {
		// RSS is in KB, convert to bytes
		// RSS 以 KB 为单位，转换为字节
		rss, _ := strconv.ParseInt(fields[0], 10, 64)
		memoryUsage = rss * 1024

		// CPU percentage
		// CPU 百分比
		cpu, _ := strconv.ParseFloat(fields[1], 64)
		cpuUsage = cpu
	}

	return cpuUsage, memoryUsage
}

// ReadProcessLogs returns the last N lines of an instance log file
// ReadProcessLogs 返回实例日志文件的最后 N 行
func ReadProcessLogs(logFile string, lines int) (string, error) {
	file, err := os.Open(logFile)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w / 打开日志文件失败：%w", err, err)
	}
	defer file.Close()

	// Read all lines / 读取所有行
	var allLines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		allLines = append(allLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	// Get last N lines / 获取最后 N 行
	start := 0
	if lines > 0 && len(allLines) > lines {
		start = len(allLines) - lines
	}

	return strings.Join(allLines[start:], "\n"), nil
}

// TailLogs tails a log file and sends lines to a channel
// TailLogs 跟踪日志文件并将行发送到通道
func TailLogs(ctx context.Context, logFile string, output chan<- string) error {
	file, err := os.Open(logFile)
	if err != nil {
		return err
	}
	defer file.Close()

	// Seek to end / 定位到末尾
	file.Seek(0, io.SeekEnd)

	reader := bufio.NewReader(file)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					time.Sleep(100 * time.Millisecond)
					continue
				}
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case output <- strings.TrimRight(line, "\n\r"):
			}
		}
	}
}

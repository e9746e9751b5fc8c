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

// Package supervisor orchestrates Procfile processes: it expands the
// manifest into instances, drives the process manager, applies the
// restart policy and records run history.
// supervisor 包编排 Procfile 进程：将清单展开为实例，驱动进程管理器，
// 应用重启策略并记录运行历史。
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/procmate/procmate/internal/apps/run"
	"github.com/procmate/procmate/internal/config"
	"github.com/procmate/procmate/internal/events"
	"github.com/procmate/procmate/internal/procfile"
	"github.com/procmate/procmate/internal/process"
	"github.com/procmate/procmate/internal/restart"
	"go.uber.org/zap"
)

// Supervisor errors
// 监管器错误
var (
	// ErrNotRunning indicates the supervisor has not been started
	// ErrNotRunning 表示监管器尚未启动
	ErrNotRunning = errors.New("supervisor: not running")

	// ErrAlreadyRunning indicates the supervisor is already started
	// ErrAlreadyRunning 表示监管器已经启动
	ErrAlreadyRunning = errors.New("supervisor: already running")

	// ErrInstanceNotFound indicates an unknown instance name
	// ErrInstanceNotFound 表示未知的实例名
	ErrInstanceNotFound = errors.New("supervisor: instance not found")
)

// watchDebounce coalesces bursts of file change notifications
// watchDebounce 合并文件变更通知的突发
const watchDebounce = 500 * time.Millisecond

// Supervisor manages the lifecycle of all Procfile instances.
// Supervisor 管理所有 Procfile 实例的生命周期。
type Supervisor struct {
	cfg    *config.Config
	logger *zap.Logger

	manager   *process.Manager
	restarter *restart.AutoRestarter
	bus       events.Bus

	// repo persists run history; nil when the database is disabled
	// repo 持久化运行历史；数据库禁用时为 nil
	repo *run.Repository

	mu        sync.RWMutex
	manifest  *procfile.Procfile
	formation Formation
	env       map[string]string
	instances map[string]*Instance
	runIDs    map[string]string
	restarts  map[string]int
	running   bool

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a Supervisor from configuration. The Procfile, env file
// and formation are loaded immediately so invalid input fails fast.
// New 从配置创建 Supervisor。Procfile、env 文件和编队会立即加载，
// 使无效输入尽早失败。
func New(cfg *config.Config, logger *zap.Logger, bus events.Bus, repo *run.Repository) (*Supervisor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := process.NewManager()
	if cfg.Timeouts.Start > 0 {
		manager.SetStartTimeout(cfg.Timeouts.Start)
	}
	if cfg.Timeouts.Graceful > 0 {
		manager.SetGracefulTimeout(cfg.Timeouts.Graceful)
	}
	if cfg.Timeouts.MonitorInterval > 0 {
		manager.SetMonitorInterval(cfg.Timeouts.MonitorInterval)
	}

	restarter := restart.NewAutoRestarter(manager, logger)
	restarter.SetConfig(&restart.Config{
		Enabled:        cfg.Restart.Enabled,
		RestartDelay:   cfg.Restart.Delay,
		MaxRestarts:    cfg.Restart.MaxRestarts,
		TimeWindow:     cfg.Restart.Window,
		CooldownPeriod: cfg.Restart.Cooldown,
	})

	s := &Supervisor{
		cfg:       cfg,
		logger:    logger,
		manager:   manager,
		restarter: restarter,
		bus:       bus,
		repo:      repo,
		instances: make(map[string]*Instance),
		runIDs:    make(map[string]string),
		restarts:  make(map[string]int),
	}

	manager.SetEventHandler(s.handleEvent)
	restarter.SetCallback(s.onRestartAttempt)

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load parses the manifest, env file and formation into instance slots.
// load 将清单、env 文件和编队解析为实例槽位。
func (s *Supervisor) load() error {
	manifest, err := procfile.ParseFile(s.cfg.Procfile.Path)
	if err != nil {
		return err
	}

	env, err := procfile.LoadEnv(s.cfg.Procfile.EnvFile)
	if err != nil {
		return err
	}

	formation, err := ParseFormation(s.cfg.Procfile.Formation)
	if err != nil {
		return err
	}
	if err := formation.Validate(manifest); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest = manifest
	s.env = env
	s.formation = formation
	s.instances = make(map[string]*Instance)
	for _, inst := range ExpandFormation(manifest, formation, s.cfg.Ports.Base, s.cfg.Ports.Step) {
		inst := inst
		s.instances[inst.Name] = &inst
	}

	s.logger.Info("manifest loaded",
		zap.String("procfile", s.cfg.Procfile.Path),
		zap.Strings("types", manifest.Names()),
		zap.Int("instances", len(s.instances)))
	return nil
}

// Start launches every instance and begins monitoring.
// Start 启动所有实例并开始监控。
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.manager.Start(s.ctx); err != nil {
		return err
	}

	for _, inst := range s.sortedInstances() {
		if err := s.startInstance(s.ctx, inst); err != nil {
			s.logger.Error("failed to start instance",
				zap.String("instance", inst.Name), zap.Error(err))
		}
	}

	if s.cfg.Procfile.Watch {
		if err := s.startWatcher(); err != nil {
			s.logger.Warn("file watch unavailable", zap.Error(err))
		}
	}
	return nil
}

// Stop shuts everything down: restarts are disabled first so crash
// handlers racing the shutdown do not resurrect processes.
// Stop 关闭所有内容：首先禁用重启，使与关闭竞争的崩溃处理器
// 不会复活进程。
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	disabled := *s.restarter.GetConfig()
	disabled.Enabled = false
	s.restarter.SetConfig(&disabled)

	if watcher != nil {
		_ = watcher.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}

	err := s.manager.StopAll(ctx)
	if stopErr := s.manager.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

// startInstance launches one instance with its PORT injected.
// startInstance 注入 PORT 后启动单个实例。
func (s *Supervisor) startInstance(ctx context.Context, inst *Instance) error {
	return s.manager.StartProcess(ctx, inst.Name, s.startParams(inst))
}

// startParams builds process launch parameters for an instance.
// startParams 为实例构建进程启动参数。
func (s *Supervisor) startParams(inst *Instance) *process.StartParams {
	s.mu.RLock()
	// PS carries the instance label, PORT the assigned port
	// PS 携带实例标签，PORT 携带分配的端口
	env := procfile.MergeEnv(s.env, map[string]string{
		"PORT": strconv.Itoa(inst.Port),
		"PS":   inst.Name,
	})
	s.mu.RUnlock()

	return &process.StartParams{
		Command:     inst.Command,
		Dir:         filepath.Dir(s.cfg.Procfile.Path),
		LogDir:      s.cfg.Log.Dir,
		Environment: env,
	}
}

// StartInstance starts a single instance by name.
// StartInstance 按名称启动单个实例。
func (s *Supervisor) StartInstance(ctx context.Context, name string) error {
	inst, err := s.instance(name)
	if err != nil {
		return err
	}
	return s.startInstance(ctx, inst)
}

// StopInstance stops a single instance by name.
// StopInstance 按名称停止单个实例。
func (s *Supervisor) StopInstance(ctx context.Context, name string) error {
	if _, err := s.instance(name); err != nil {
		return err
	}
	return s.manager.StopProcess(ctx, name, &process.StopParams{Timeout: s.cfg.Timeouts.Graceful})
}

// RestartInstance restarts a single instance by name.
// RestartInstance 按名称重启单个实例。
func (s *Supervisor) RestartInstance(ctx context.Context, name string) error {
	inst, err := s.instance(name)
	if err != nil {
		return err
	}
	return s.manager.RestartProcess(ctx, name, s.startParams(inst),
		&process.StopParams{Timeout: s.cfg.Timeouts.Graceful})
}

// Scale changes the instance count of a process type at runtime.
// Scale 在运行时更改进程类型的实例数。
//
// Growing starts new instances at the next free indexes of the type's
// port block; shrinking stops the highest-numbered instances first.
// 扩容时在该类型端口块的下一个空闲序号启动新实例；
// 缩容时优先停止序号最高的实例。
func (s *Supervisor) Scale(ctx context.Context, procType string, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: count must be non-negative", ErrInvalidFormation)
	}

	s.mu.Lock()
	if s.manifest == nil || !s.manifest.Has(procType) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownProcessType, procType)
	}
	entry, _ := s.manifest.Entry(procType)

	pos := 0
	for i, e := range s.manifest.Entries {
		if e.Name == procType {
			pos = i
			break
		}
	}
	blockStart := s.cfg.Ports.Base + s.cfg.Ports.Step*pos

	current := 0
	for _, inst := range s.instances {
		if inst.Type == procType {
			current++
		}
	}

	var toStart []*Instance
	var toStop []string
	for i := count + 1; i <= current; i++ {
		toStop = append(toStop, fmt.Sprintf("%s.%d", procType, i))
	}
	for i := current + 1; i <= count; i++ {
		inst := &Instance{
			Name:    fmt.Sprintf("%s.%d", procType, i),
			Type:    procType,
			Command: entry.Command,
			Port:    blockStart + (i - 1),
			Index:   i,
		}
		s.instances[inst.Name] = inst
		toStart = append(toStart, inst)
	}
	s.formation[procType] = count
	s.mu.Unlock()

	var lastErr error
	for _, name := range toStop {
		if err := s.manager.StopProcess(ctx, name, &process.StopParams{Timeout: s.cfg.Timeouts.Graceful}); err != nil &&
			!errors.Is(err, process.ErrProcessNotFound) && !errors.Is(err, process.ErrProcessNotRunning) {
			lastErr = err
		}
		s.manager.RemoveProcess(name)
		s.mu.Lock()
		delete(s.instances, name)
		s.mu.Unlock()
	}
	for _, inst := range toStart {
		if err := s.startInstance(ctx, inst); err != nil {
			lastErr = err
		}
	}

	s.logger.Info("formation scaled",
		zap.String("type", procType), zap.Int("count", count))
	return lastErr
}

// Reload re-reads the Procfile and env file and reconciles running
// instances: removed or changed instances are stopped, new ones started.
// Reload 重新读取 Procfile 和 env 文件并调和运行中的实例：
// 被移除或变更的实例会停止，新实例会启动。
func (s *Supervisor) Reload(ctx context.Context) error {
	s.mu.RLock()
	old := make(map[string]*Instance, len(s.instances))
	for name, inst := range s.instances {
		old[name] = inst
	}
	s.mu.RUnlock()

	if err := s.load(); err != nil {
		return err
	}

	s.mu.RLock()
	desired := make(map[string]*Instance, len(s.instances))
	for name, inst := range s.instances {
		desired[name] = inst
	}
	s.mu.RUnlock()

	var lastErr error
	var stopped []string
	for name, prev := range old {
		next, keep := desired[name]
		if keep && next.Command == prev.Command && next.Port == prev.Port {
			continue
		}
		if err := s.manager.StopProcess(ctx, name, &process.StopParams{Timeout: s.cfg.Timeouts.Graceful}); err != nil &&
			!errors.Is(err, process.ErrProcessNotFound) && !errors.Is(err, process.ErrProcessNotRunning) {
			lastErr = err
		}
		if !keep {
			s.manager.RemoveProcess(name)
		} else {
			stopped = append(stopped, name)
		}
	}
	// Let the exit of each replaced instance be reaped before relaunching
	// under the same name, so its run record closes before a new one opens.
	// 等待被替换实例的退出被回收后再以同名重启，
	// 使其运行记录在新记录打开前关闭。
	for _, name := range stopped {
		if err := s.manager.WaitExited(ctx, name); err != nil {
			s.logger.Warn("instance did not settle before relaunch",
				zap.String("instance", name), zap.Error(err))
		}
	}
	for name, inst := range desired {
		if prev, existed := old[name]; existed && prev.Command == inst.Command && prev.Port == inst.Port && s.manager.IsRunning(name) {
			continue
		}
		if err := s.startInstance(ctx, inst); err != nil {
			lastErr = err
		}
	}

	s.logger.Info("reload complete", zap.Int("instances", len(desired)))
	return lastErr
}

// Status returns the live status of one instance.
// Status 返回单个实例的实时状态。
func (s *Supervisor) Status(ctx context.Context, name string) (*process.ProcessInfo, error) {
	return s.manager.GetStatus(ctx, name)
}

// List returns the live status of every known instance.
// List 返回所有已知实例的实时状态。
func (s *Supervisor) List() []*process.ProcessInfo {
	return s.manager.ListProcesses()
}

// Instances returns the declared instance slots in port order.
// Instances 按端口顺序返回声明的实例槽位。
func (s *Supervisor) Instances() []*Instance {
	return s.sortedInstances()
}

// Logs returns the last n lines of an instance's output.
// Logs 返回实例输出的最后 n 行。
func (s *Supervisor) Logs(ctx context.Context, name string, lines int) (string, error) {
	info, err := s.manager.GetStatus(ctx, name)
	if err != nil {
		return "", err
	}
	return process.ReadProcessLogs(info.LogFile, lines)
}

// FollowLogs streams an instance's output lines as they are written.
// The channel closes when ctx is cancelled or the stream fails.
// FollowLogs 在实例输出写入时流式返回日志行。
// ctx 取消或流失败时通道关闭。
func (s *Supervisor) FollowLogs(ctx context.Context, name string) (<-chan string, error) {
	info, err := s.manager.GetStatus(ctx, name)
	if err != nil {
		return nil, err
	}

	ch := make(chan string)
	go func() {
		defer close(ch)
		if err := process.TailLogs(ctx, info.LogFile, ch); err != nil &&
			!errors.Is(err, context.Canceled) {
			s.logger.Warn("log follow ended",
				zap.String("instance", name), zap.Error(err))
		}
	}()
	return ch, nil
}

// Restarter exposes the restart policy for inspection.
// Restarter 暴露重启策略以供检查。
func (s *Supervisor) Restarter() *restart.AutoRestarter {
	return s.restarter
}

// Manifest returns the currently loaded manifest.
// Manifest 返回当前加载的清单。
func (s *Supervisor) Manifest() *procfile.Procfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

// instance looks up a declared instance slot.
// instance 查找声明的实例槽位。
func (s *Supervisor) instance(name string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInstanceNotFound, name)
	}
	return inst, nil
}

// sortedInstances returns instance slots ordered by port.
// sortedInstances 返回按端口排序的实例槽位。
func (s *Supervisor) sortedInstances() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Port > out[j].Port; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// handleEvent reacts to process lifecycle events from the manager:
// publish to the bus, persist run history, and kick off auto restart.
// handleEvent 响应管理器的进程生命周期事件：
// 发布到总线、持久化运行历史并触发自动重启。
func (s *Supervisor) handleEvent(name string, event process.Event, info *process.ProcessInfo) {
	busEvent := events.NewEvent(string(event), name)
	if info != nil {
		busEvent.PID = info.PID
		busEvent.ExitCode = info.ExitCode
		busEvent.Message = info.LastError
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, busEvent); err != nil {
			s.logger.Warn("event publish failed", zap.Error(err))
		}
	}

	s.recordEvent(ctx, busEvent)

	switch event {
	case process.EventStarted:
		s.recordRunStarted(ctx, name, info)
	case process.EventStopped:
		s.recordRunEnded(ctx, name, run.RunStatusStopped, info)
	case process.EventCrashed:
		s.recordRunEnded(ctx, name, run.RunStatusCrashed, info)
		s.scheduleRestart(name)
	}
}

// scheduleRestart hands a crashed instance to the restart policy.
// scheduleRestart 将崩溃的实例交给重启策略处理。
func (s *Supervisor) scheduleRestart(name string) {
	s.mu.RLock()
	running := s.running
	ctx := s.ctx
	inst := s.instances[name]
	s.mu.RUnlock()

	if !running || inst == nil {
		return
	}

	params := s.startParams(inst)
	go func() {
		err := s.restarter.OnProcessCrashed(ctx, name, params)
		switch {
		case err == nil || errors.Is(err, context.Canceled):
		case errors.Is(err, restart.ErrRestartGivenUp):
			s.logger.Warn("restart policy gave up",
				zap.String("instance", name))
			busEvent := events.NewEvent("restart-given-up", name)
			busEvent.Message = err.Error()
			if s.bus != nil {
				if pubErr := s.bus.Publish(ctx, busEvent); pubErr != nil {
					s.logger.Warn("event publish failed", zap.Error(pubErr))
				}
			}
			s.recordEvent(ctx, busEvent)
		default:
			s.logger.Warn("auto restart failed",
				zap.String("instance", name), zap.Error(err))
		}
	}()
}

// onRestartAttempt is the restarter callback: it counts successful
// restarts and announces them on the bus.
// onRestartAttempt 是重启器回调：统计成功的重启并在总线上公告。
func (s *Supervisor) onRestartAttempt(name string, success bool, err error) {
	if !success {
		s.logger.Error("restart attempt failed", zap.String("instance", name), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.restarts[name]++
	count := s.restarts[name]
	s.mu.Unlock()

	busEvent := events.NewEvent("restarted", name)
	busEvent.Message = fmt.Sprintf("restart #%d", count)

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if s.bus != nil {
		if pubErr := s.bus.Publish(ctx, busEvent); pubErr != nil {
			s.logger.Warn("event publish failed", zap.Error(pubErr))
		}
	}
	s.recordEvent(ctx, busEvent)
}

// recordEvent persists a bus event when the database is enabled.
// recordEvent 在数据库启用时持久化总线事件。
func (s *Supervisor) recordEvent(ctx context.Context, event events.Event) {
	if s.repo == nil {
		return
	}
	log := &run.EventLog{
		EventID:  event.ID,
		Process:  event.Process,
		Type:     event.Type,
		PID:      event.PID,
		ExitCode: event.ExitCode,
		Message:  event.Message,
	}
	if err := s.repo.CreateEvent(ctx, log); err != nil {
		s.logger.Warn("event record failed", zap.Error(err))
	}
}

// recordRunStarted opens a run history record for a fresh launch.
// recordRunStarted 为一次新启动打开运行历史记录。
func (s *Supervisor) recordRunStarted(ctx context.Context, name string, info *process.ProcessInfo) {
	if s.repo == nil {
		return
	}

	s.mu.Lock()
	inst := s.instances[name]
	runID := uuid.NewString()
	s.runIDs[name] = runID
	restarts := s.restarts[name]
	s.mu.Unlock()

	if inst == nil {
		return
	}

	rec := &run.ProcessRun{
		RunID:       runID,
		Process:     name,
		ProcessType: inst.Type,
		Command:     inst.Command,
		Port:        inst.Port,
		Status:      run.RunStatusRunning,
		Restarts:    restarts,
		StartedAt:   time.Now(),
	}
	if info != nil {
		rec.PID = info.PID
		rec.StartedAt = info.StartTime
	}
	if err := s.repo.CreateRun(ctx, rec); err != nil {
		s.logger.Warn("run record failed", zap.Error(err))
	}
}

// recordRunEnded closes the open run history record for an instance.
// recordRunEnded 关闭实例打开的运行历史记录。
func (s *Supervisor) recordRunEnded(ctx context.Context, name string, status run.RunStatus, info *process.ProcessInfo) {
	if s.repo == nil {
		return
	}

	s.mu.Lock()
	runID, ok := s.runIDs[name]
	delete(s.runIDs, name)
	s.mu.Unlock()
	if !ok {
		return
	}

	exitCode := 0
	if info != nil {
		exitCode = info.ExitCode
	}
	if err := s.repo.FinishRun(ctx, runID, status, exitCode); err != nil {
		s.logger.Warn("run finish failed", zap.Error(err))
	}
}

// startWatcher watches the Procfile and env file for changes and
// triggers a reload after a short debounce.
// startWatcher 监视 Procfile 和 env 文件的变更，
// 并在短暂防抖后触发重载。
func (s *Supervisor) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	watched := map[string]bool{
		filepath.Clean(s.cfg.Procfile.Path): true,
	}
	if s.cfg.Procfile.EnvFile != "" {
		watched[filepath.Clean(s.cfg.Procfile.EnvFile)] = true
	}

	// Watch parent directories: editors replace files on save, which
	// drops inode-level watches.
	// 监视父目录：编辑器保存时会替换文件，导致 inode 级监视失效。
	dirs := map[string]bool{}
	for path := range watched {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return err
		}
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	go func() {
		var timer *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watched[filepath.Clean(event.Name)] {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				s.logger.Info("manifest change detected", zap.String("file", event.Name))
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					ctx := s.ctx
					if ctx == nil {
						ctx = context.Background()
					}
					if err := s.Reload(ctx); err != nil {
						s.logger.Error("reload failed", zap.Error(err))
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("watch error", zap.Error(err))
			}
		}
	}()
	return nil
}

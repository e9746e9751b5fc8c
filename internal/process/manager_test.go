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

package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStartProcess_AndStop tests the basic start/stop lifecycle
// TestStartProcess_AndStop 测试基本的启动/停止生命周期
func TestStartProcess_AndStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()
	ctx := context.Background()

	err := m.StartProcess(ctx, "web.1", &StartParams{
		Command: "sleep 60",
		LogDir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.True(t, m.IsRunning("web.1"))

	info, err := m.GetStatus(ctx, "web.1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)
	assert.Greater(t, info.PID, 0)
	assert.Equal(t, "sleep 60", info.Command)

	err = m.StopProcess(ctx, "web.1", &StopParams{Timeout: 5 * time.Second})
	require.NoError(t, err)

	// The reaper needs a moment to record the exit
	// 回收协程需要一点时间记录退出
	require.Eventually(t, func() bool {
		return !m.IsRunning("web.1")
	}, 5*time.Second, 50*time.Millisecond)
}

// TestStartProcess_AlreadyRunning tests double-start rejection
// TestStartProcess_AlreadyRunning 测试重复启动被拒绝
func TestStartProcess_AlreadyRunning(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()
	ctx := context.Background()
	logDir := t.TempDir()

	require.NoError(t, m.StartProcess(ctx, "web.1", &StartParams{Command: "sleep 60", LogDir: logDir}))
	defer m.StopProcess(ctx, "web.1", &StopParams{Timeout: 2 * time.Second})

	err := m.StartProcess(ctx, "web.1", &StartParams{Command: "sleep 60", LogDir: logDir})
	assert.ErrorIs(t, err, ErrProcessAlreadyRunning)
}

// TestStartProcess_EmptyCommand tests rejection of a blank command
// TestStartProcess_EmptyCommand 测试空命令被拒绝
func TestStartProcess_EmptyCommand(t *testing.T) {
	m := NewManager()
	err := m.StartProcess(context.Background(), "web.1", &StartParams{Command: "   "})
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

// TestCrashDetection tests that an unexpected exit raises EventCrashed
// TestCrashDetection 测试意外退出会触发 EventCrashed
func TestCrashDetection(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()

	var mu sync.Mutex
	var events []Event
	var lastInfo *ProcessInfo
	m.SetEventHandler(func(name string, event Event, info *ProcessInfo) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
		lastInfo = info
	})

	err := m.StartProcess(context.Background(), "worker.1", &StartParams{
		Command: "exit 3",
		LogDir:  t.TempDir(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == EventCrashed {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, Event("started"), events[0])
	assert.Equal(t, 3, lastInfo.ExitCode)
	assert.Equal(t, StatusCrashed, lastInfo.Status)
}

// TestRequestedStop_IsNotACrash tests stop events are not crash events
// TestRequestedStop_IsNotACrash 测试主动停止不会被当作崩溃
func TestRequestedStop_IsNotACrash(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()

	var mu sync.Mutex
	var events []Event
	m.SetEventHandler(func(name string, event Event, info *ProcessInfo) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	})

	ctx := context.Background()
	require.NoError(t, m.StartProcess(ctx, "web.1", &StartParams{Command: "sleep 60", LogDir: t.TempDir()}))
	require.NoError(t, m.StopProcess(ctx, "web.1", &StopParams{Timeout: 5 * time.Second}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == EventStopped {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, events, EventCrashed)
}

// TestStopProcess_NotRunning tests stopping a process that is not running
// TestStopProcess_NotRunning 测试停止未运行的进程
func TestStopProcess_NotRunning(t *testing.T) {
	m := NewManager()
	err := m.StopProcess(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, ErrProcessNotFound)
}

// TestStopProcess_AlreadyStopped tests that stopping a dead instance succeeds
// TestStopProcess_AlreadyStopped 测试停止已死亡的实例会成功
func TestStopProcess_AlreadyStopped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.StartProcess(ctx, "web.1", &StartParams{Command: "sleep 60", LogDir: t.TempDir()}))
	require.NoError(t, m.StopProcess(ctx, "web.1", &StopParams{Timeout: 5 * time.Second}))
	require.NoError(t, m.WaitExited(ctx, "web.1"))

	info, err := m.GetStatus(ctx, "web.1")
	require.NoError(t, err)
	require.Equal(t, StatusStopped, info.Status)

	// A second stop is a no-op, not a conflict / 再次停止是无操作，不是冲突
	assert.NoError(t, m.StopProcess(ctx, "web.1", nil))

	// Same for an instance that crashed on its own / 自行崩溃的实例同理
	require.NoError(t, m.StartProcess(ctx, "flaky.1", &StartParams{Command: "exit 1", LogDir: t.TempDir()}))
	require.NoError(t, m.WaitExited(ctx, "flaky.1"))
	assert.NoError(t, m.StopProcess(ctx, "flaky.1", nil))
}

// TestWaitExited tests that WaitExited returns only after the exit is reaped
// TestWaitExited 测试 WaitExited 仅在退出被回收后返回
func TestWaitExited(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()
	ctx := context.Background()

	require.NoError(t, m.StartProcess(ctx, "web.1", &StartParams{Command: "sleep 60", LogDir: t.TempDir()}))
	require.NoError(t, m.StopProcess(ctx, "web.1", &StopParams{Timeout: 5 * time.Second}))
	require.NoError(t, m.WaitExited(ctx, "web.1"))

	// No transitional status remains once WaitExited returns
	// WaitExited 返回后不再处于过渡状态
	info, err := m.GetStatus(ctx, "web.1")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, info.Status)

	// Unknown names return immediately / 未知名称立即返回
	assert.NoError(t, m.WaitExited(ctx, "ghost"))

	// A configured settle timeout bounds the wait for a live process
	// 配置的稳定超时限制对存活进程的等待
	m.SetStartTimeout(200 * time.Millisecond)
	require.NoError(t, m.StartProcess(ctx, "web.2", &StartParams{Command: "sleep 60", LogDir: t.TempDir()}))
	defer m.StopProcess(ctx, "web.2", &StopParams{Timeout: 2 * time.Second})
	assert.Error(t, m.WaitExited(ctx, "web.2"))
}

// TestProcessOutput_GoesToLogFile tests stdout capture
// TestProcessOutput_GoesToLogFile 测试标准输出捕获
func TestProcessOutput_GoesToLogFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()
	logDir := t.TempDir()

	require.NoError(t, m.StartProcess(context.Background(), "web.1", &StartParams{
		Command: "echo hello from web",
		LogDir:  logDir,
	}))

	logFile := filepath.Join(logDir, "web.1.log")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logFile)
		return err == nil && strings.Contains(string(data), "hello from web")
	}, 5*time.Second, 50*time.Millisecond)

	out, err := ReadProcessLogs(logFile, 10)
	require.NoError(t, err)
	assert.Contains(t, out, "hello from web")
}

// TestTailLogs_StopsOnCancel tests that a follower without a reader
// unblocks when its context is cancelled
// TestTailLogs_StopsOnCancel 测试没有读者的跟踪器在上下文取消时解除阻塞
func TestTailLogs_StopsOnCancel(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "web.1.log")
	require.NoError(t, os.WriteFile(logFile, nil, 0644))

	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string)

	errCh := make(chan error, 1)
	go func() {
		errCh <- TailLogs(ctx, logFile, lines)
	}()

	// Append a line nobody reads, then cancel / 追加一行无人读取的日志后取消
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("tick\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("TailLogs did not return after cancellation")
	}
}

// TestEnvironmentInjection tests that per-process env vars reach the child
// TestEnvironmentInjection 测试每进程环境变量能传递给子进程
func TestEnvironmentInjection(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()
	logDir := t.TempDir()

	require.NoError(t, m.StartProcess(context.Background(), "web.1", &StartParams{
		Command:     `echo "port=$PORT"`,
		LogDir:      logDir,
		Environment: map[string]string{"PORT": "5000"},
	}))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(logDir, "web.1.log"))
		return err == nil && strings.Contains(string(data), "port=5000")
	}, 5*time.Second, 50*time.Millisecond)
}

// TestRestartProcess tests stop-then-start semantics
// TestRestartProcess 测试先停后启的语义
func TestRestartProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()
	ctx := context.Background()
	params := &StartParams{Command: "sleep 60", LogDir: t.TempDir()}

	require.NoError(t, m.StartProcess(ctx, "web.1", params))
	first, err := m.GetStatus(ctx, "web.1")
	require.NoError(t, err)

	require.NoError(t, m.RestartProcess(ctx, "web.1", params, &StopParams{Timeout: 5 * time.Second}))
	defer m.StopProcess(ctx, "web.1", &StopParams{Timeout: 2 * time.Second})

	second, err := m.GetStatus(ctx, "web.1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, second.Status)
	assert.NotEqual(t, first.PID, second.PID)
}

// TestListProcesses tests the list view
// TestListProcesses 测试列表视图
func TestListProcesses(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := NewManager()
	ctx := context.Background()
	logDir := t.TempDir()

	require.NoError(t, m.StartProcess(ctx, "web.1", &StartParams{Command: "sleep 60", LogDir: logDir}))
	require.NoError(t, m.StartProcess(ctx, "worker.1", &StartParams{Command: "sleep 60", LogDir: logDir}))
	defer m.StopAll(ctx)

	infos := m.ListProcesses()
	require.Len(t, infos, 2)

	names := []string{infos[0].Name, infos[1].Name}
	assert.Contains(t, names, "web.1")
	assert.Contains(t, names, "worker.1")
}

// TestIsProcessAlive tests the signal-0 alive check
// TestIsProcessAlive 测试信号 0 存活检查
func TestIsProcessAlive(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix only")
	}

	assert.True(t, isProcessAlive(os.Getpid()))
	assert.False(t, isProcessAlive(-1))
	assert.False(t, isProcessAlive(0))
}

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

package restart

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/procmate/procmate/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRestarter() *AutoRestarter {
	r := NewAutoRestarter(process.NewManager(), nil)
	r.SetConfig(&Config{
		Enabled:        true,
		RestartDelay:   10 * time.Millisecond,
		MaxRestarts:    3,
		TimeWindow:     time.Minute,
		CooldownPeriod: time.Hour,
	})
	return r
}

// TestShouldRestart_NoHistory tests the first crash is always restartable
// TestShouldRestart_NoHistory 测试首次崩溃总是可以重启
func TestShouldRestart_NoHistory(t *testing.T) {
	r := newTestRestarter()
	assert.True(t, r.ShouldRestart("web.1"))
}

// TestShouldRestart_Disabled tests the policy gate
// TestShouldRestart_Disabled 测试策略开关
func TestShouldRestart_Disabled(t *testing.T) {
	r := newTestRestarter()
	cfg := r.GetConfig()
	cfg.Enabled = false
	r.SetConfig(cfg)

	assert.False(t, r.ShouldRestart("web.1"))
}

// TestShouldRestart_LimitAndCooldown tests the sliding window limit
// TestShouldRestart_LimitAndCooldown 测试滑动窗口限制
func TestShouldRestart_LimitAndCooldown(t *testing.T) {
	r := newTestRestarter()

	// Record MaxRestarts restarts within the window
	// 在窗口内记录 MaxRestarts 次重启
	for i := 0; i < 3; i++ {
		r.recordRestart("web.1")
	}

	assert.False(t, r.ShouldRestart("web.1"))
	assert.True(t, r.IsInCooldown("web.1"))

	// Resetting the count lifts the cooldown / 重置计数解除冷却
	r.ResetRestartCount("web.1")
	assert.False(t, r.IsInCooldown("web.1"))
	assert.True(t, r.ShouldRestart("web.1"))
}

// TestShouldRestart_UnderLimit tests restarts below the window limit
// TestShouldRestart_UnderLimit 测试低于窗口限制的重启
func TestShouldRestart_UnderLimit(t *testing.T) {
	r := newTestRestarter()

	r.recordRestart("web.1")
	r.recordRestart("web.1")

	assert.True(t, r.ShouldRestart("web.1"))
	assert.False(t, r.IsInCooldown("web.1"))
}

// TestGetHistory tests history tracking and copy semantics
// TestGetHistory 测试历史跟踪和副本语义
func TestGetHistory(t *testing.T) {
	r := newTestRestarter()

	assert.Nil(t, r.GetHistory("web.1"))

	r.recordRestart("web.1")
	h := r.GetHistory("web.1")
	require.NotNil(t, h)
	assert.Equal(t, 1, h.RestartCount)
	assert.Len(t, h.RestartTimes, 1)

	// Mutating the copy must not affect internal state
	// 修改副本不能影响内部状态
	h.RestartCount = 99
	assert.Equal(t, 1, r.GetHistory("web.1").RestartCount)
}

// TestOnProcessCrashed_RestartsProcess tests the crash-to-restart path
// TestOnProcessCrashed_RestartsProcess 测试从崩溃到重启的路径
func TestOnProcessCrashed_RestartsProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	m := process.NewManager()
	r := NewAutoRestarter(m, nil)
	r.SetConfig(&Config{
		Enabled:        true,
		RestartDelay:   10 * time.Millisecond,
		MaxRestarts:    3,
		TimeWindow:     time.Minute,
		CooldownPeriod: time.Hour,
	})

	var cbSuccess bool
	r.SetCallback(func(name string, success bool, err error) {
		cbSuccess = success
	})

	ctx := context.Background()
	params := &process.StartParams{Command: "sleep 60", LogDir: t.TempDir()}

	err := r.OnProcessCrashed(ctx, "web.1", params)
	require.NoError(t, err)
	defer m.StopAll(ctx)

	assert.True(t, m.IsRunning("web.1"))
	assert.True(t, cbSuccess)
	assert.Equal(t, 1, r.GetHistory("web.1").RestartCount)
}

// TestOnProcessCrashed_Disabled tests that a disabled policy does nothing
// TestOnProcessCrashed_Disabled 测试禁用策略时不执行任何操作
func TestOnProcessCrashed_Disabled(t *testing.T) {
	m := process.NewManager()
	r := NewAutoRestarter(m, nil)
	cfg := r.GetConfig()
	cfg.Enabled = false
	r.SetConfig(cfg)

	err := r.OnProcessCrashed(context.Background(), "web.1", &process.StartParams{Command: "sleep 60"})
	require.NoError(t, err)
	assert.False(t, m.IsRunning("web.1"))
}

// TestOnProcessCrashed_ContextCancelled tests cancellation during the delay
// TestOnProcessCrashed_ContextCancelled 测试延迟期间的取消
func TestOnProcessCrashed_ContextCancelled(t *testing.T) {
	r := newTestRestarter()
	cfg := r.GetConfig()
	cfg.RestartDelay = 10 * time.Second
	r.SetConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.OnProcessCrashed(ctx, "web.1", &process.StartParams{Command: "sleep 60"})
	assert.ErrorIs(t, err, context.Canceled)
}

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

package events

import (
	"context"
	"testing"
	"time"

	"github.com/procmate/procmate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryBus_PublishSubscribe 测试基本的发布/订阅流程
func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(4)
	defer cancel()

	event := NewEvent("started", "web.1")
	require.NoError(t, bus.Publish(context.Background(), event))

	select {
	case got := <-ch:
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, "started", got.Type)
		assert.Equal(t, "web.1", got.Process)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

// TestMemoryBus_MultipleSubscribers 测试事件广播给所有订阅者
func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := bus.Subscribe(4)
	defer cancel2()

	require.NoError(t, bus.Publish(context.Background(), NewEvent("crashed", "worker.1")))

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "crashed", got.Type)
		case <-time.After(time.Second):
			t.Fatal("event not delivered to all subscribers")
		}
	}
}

// TestMemoryBus_SlowSubscriberDoesNotBlock 测试慢订阅者不会阻塞发布
func TestMemoryBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	// 缓冲为 1，后续事件会被丢弃而不是阻塞
	_, cancel := bus.Subscribe(1)
	defer cancel()

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = bus.Publish(ctx, NewEvent("started", "web.1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked by slow subscriber")
	}
}

// TestMemoryBus_CancelStopsDelivery 测试取消订阅后通道被关闭
func TestMemoryBus_CancelStopsDelivery(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(4)
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// 取消后发布不应 panic
	assert.NoError(t, bus.Publish(context.Background(), NewEvent("stopped", "web.1")))
}

// TestNew_MemoryFallback 测试 Redis 未启用时选择内存总线
func TestNew_MemoryFallback(t *testing.T) {
	bus, err := New(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	defer bus.Close()

	_, ok := bus.(*MemoryBus)
	assert.True(t, ok)
}

// TestNewEvent 测试事件构造
func TestNewEvent(t *testing.T) {
	e := NewEvent("restarted", "clock.1")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "restarted", e.Type)
	assert.Equal(t, "clock.1", e.Process)
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Second)
}

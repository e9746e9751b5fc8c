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

// Package events 提供进程生命周期事件的发布/订阅抽象层，
// 支持内存总线和 Redis 总线
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/procmate/procmate/internal/config"
	"github.com/redis/go-redis/v9"
)

// redisChannel 是 Redis 发布/订阅使用的频道名
const redisChannel = "procmate:events"

// Event 进程生命周期事件
type Event struct {
	// ID 事件唯一标识
	ID string `json:"id"`

	// Type 事件类型：started、stopped、crashed、restarted
	Type string `json:"type"`

	// Process 实例名称，例如 "web.1"
	Process string `json:"process"`

	// PID 事件发生时的进程 ID
	PID int `json:"pid,omitempty"`

	// ExitCode 退出码（仅 stopped/crashed 事件有意义）
	ExitCode int `json:"exit_code,omitempty"`

	// Message 人类可读的描述
	Message string `json:"message,omitempty"`

	// Timestamp 事件发生时间
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent 创建带 ID 和时间戳的事件
func NewEvent(eventType, process string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Process:   process,
		Timestamp: time.Now(),
	}
}

// Bus 事件总线接口
// 定义了事件的基本操作：发布、订阅、关闭
type Bus interface {
	// Publish 发布一个事件
	Publish(ctx context.Context, event Event) error

	// Subscribe 订阅事件流，返回接收通道和取消函数
	// 通道缓冲满时事件会被丢弃，订阅者不能阻塞发布者
	Subscribe(buffer int) (<-chan Event, func())

	// Close 关闭总线并释放资源
	Close() error
}

// New 根据配置选择事件总线实现
// Redis 启用时使用 Redis 发布/订阅，否则使用进程内总线
func New(ctx context.Context, cfg config.RedisConfig) (Bus, error) {
	if !cfg.Enabled {
		return NewMemoryBus(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("events: redis ping failed: %w", err)
	}

	return NewRedisBus(client), nil
}

// subscriber 单个订阅者
type subscriber struct {
	ch     chan Event
	closed bool
}

// MemoryBus 进程内事件总线实现
type MemoryBus struct {
	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

// NewMemoryBus 创建新的内存总线实例
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]*subscriber)}
}

// Publish 将事件分发给所有订阅者
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// 订阅者跟不上时丢弃，发布者不能被阻塞
		}
	}
	return nil
}

// Subscribe 注册一个新的订阅者
func (b *MemoryBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	sub := &subscriber{ch: make(chan Event, buffer)}
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok && !s.closed {
			s.closed = true
			close(s.ch)
			delete(b.subs, id)
		}
	}
	return sub.ch, cancel
}

// Close 关闭所有订阅通道
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		delete(b.subs, id)
	}
	return nil
}

// RedisBus Redis 发布/订阅事件总线实现
// 多个 Procmate 实例共享同一 Redis 时可以互相看到事件
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus 创建新的 Redis 总线实例
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish 将事件序列化为 JSON 并发布到 Redis 频道
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisChannel, data).Err()
}

// Subscribe 订阅 Redis 频道并转换为事件通道
func (b *RedisBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, redisChannel)
	out := make(chan Event, buffer)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				// 跳过无法解析的消息
				continue
			}
			select {
			case out <- event:
			default:
			}
		}
	}()

	return out, func() {
		cancel()
		_ = pubsub.Close()
	}
}

// Close 关闭 Redis 连接
func (b *RedisBus) Close() error {
	return b.client.Close()
}

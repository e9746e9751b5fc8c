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

import "errors"

// Error definitions for run history operations.
// 运行历史操作的错误定义。
var (
	// ErrRunNotFound indicates the requested run record does not exist.
	// ErrRunNotFound 表示请求的运行记录不存在。
	ErrRunNotFound = errors.New("run: run record not found")
	// ErrRunIDDuplicate indicates a run with the same run ID already exists.
	// ErrRunIDDuplicate 表示具有相同运行 ID 的记录已存在。
	ErrRunIDDuplicate = errors.New("run: run ID already exists")
	// ErrRunIDEmpty indicates the run ID is empty.
	// ErrRunIDEmpty 表示运行 ID 为空。
	ErrRunIDEmpty = errors.New("run: run ID cannot be empty")
	// ErrProcessEmpty indicates the process name is empty.
	// ErrProcessEmpty 表示进程名称为空。
	ErrProcessEmpty = errors.New("run: process cannot be empty")
	// ErrCommandEmpty indicates the command is empty.
	// ErrCommandEmpty 表示命令为空。
	ErrCommandEmpty = errors.New("run: command cannot be empty")
	// ErrEventNotFound indicates the requested event record does not exist.
	// ErrEventNotFound 表示请求的事件记录不存在。
	ErrEventNotFound = errors.New("run: event record not found")
	// ErrEventTypeEmpty indicates the event type is empty.
	// ErrEventTypeEmpty 表示事件类型为空。
	ErrEventTypeEmpty = errors.New("run: event type cannot be empty")
)

// Error codes for run history operations.
// 运行历史操作的错误代码。
const (
	ErrCodeRunNotFound    = 5001
	ErrCodeRunIDDuplicate = 5002
	ErrCodeRunIDEmpty     = 5003
	ErrCodeProcessEmpty   = 5004
	ErrCodeCommandEmpty   = 5005
	ErrCodeEventNotFound  = 5006
	ErrCodeEventTypeEmpty = 5007
)

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

package supervisor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/procmate/procmate/internal/procfile"
)

// Formation errors
// 编队错误
var (
	// ErrInvalidFormation indicates a malformed formation spec
	// ErrInvalidFormation 表示编队规格格式错误
	ErrInvalidFormation = errors.New("supervisor: invalid formation spec")

	// ErrUnknownProcessType indicates a formation entry for an undeclared type
	// ErrUnknownProcessType 表示编队中引用了未声明的进程类型
	ErrUnknownProcessType = errors.New("supervisor: unknown process type in formation")
)

// FormationAll is the wildcard type name applying a count to every type.
// FormationAll 是对每个类型应用实例数的通配类型名。
const FormationAll = "all"

// Formation maps a process type to its desired instance count.
// Formation 将进程类型映射到期望的实例数。
type Formation map[string]int

// ParseFormation parses a spec like "web=2,worker=1".
// ParseFormation 解析形如 "web=2,worker=1" 的规格。
//
// An empty spec yields an empty Formation, which means one instance per
// declared type. A count of 0 disables the type entirely.
// 空规格产生空 Formation，表示每个声明的类型一个实例。
// 实例数为 0 表示完全禁用该类型。
func ParseFormation(spec string) (Formation, error) {
	f := make(Formation)
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return f, nil
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, countStr, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q (expected name=count)", ErrInvalidFormation, part)
		}

		name = strings.TrimSpace(name)
		countStr = strings.TrimSpace(countStr)
		if name == "" {
			return nil, fmt.Errorf("%w: %q (empty process type)", ErrInvalidFormation, part)
		}

		count, err := strconv.Atoi(countStr)
		if err != nil || count < 0 {
			return nil, fmt.Errorf("%w: %q (count must be a non-negative integer)", ErrInvalidFormation, part)
		}

		if _, exists := f[name]; exists {
			return nil, fmt.Errorf("%w: %q declared twice", ErrInvalidFormation, name)
		}
		f[name] = count
	}

	return f, nil
}

// Count returns the desired instance count for a process type.
// Count 返回进程类型的期望实例数。
func (f Formation) Count(name string) int {
	if count, ok := f[name]; ok {
		return count
	}
	if count, ok := f[FormationAll]; ok {
		return count
	}
	return 1
}

// Validate checks that every named type (except the wildcard) is declared.
// Validate 检查每个具名类型（通配符除外）均已声明。
func (f Formation) Validate(pf *procfile.Procfile) error {
	for name := range f {
		if name == FormationAll {
			continue
		}
		if !pf.Has(name) {
			return fmt.Errorf("%w: %q", ErrUnknownProcessType, name)
		}
	}
	return nil
}

// Instance is one concrete process slot derived from the manifest.
// Instance 是从清单派生的一个具体进程槽位。
type Instance struct {
	// Name is the instance label, e.g. "web.1"
	// Name 是实例标签，例如 "web.1"
	Name string `json:"name"`

	// Type is the declaring process type, e.g. "web"
	// Type 是声明的进程类型，例如 "web"
	Type string `json:"type"`

	// Command is the launch command from the manifest
	// Command 是来自清单的启动命令
	Command string `json:"command"`

	// Port is the PORT value handed to the process
	// Port 是传递给进程的 PORT 值
	Port int `json:"port"`

	// Index is the 1-based instance number within the type
	// Index 是类型内从 1 开始的实例序号
	Index int `json:"index"`
}

// ExpandFormation turns a manifest plus formation into concrete instances.
// ExpandFormation 将清单和编队展开为具体实例。
//
// Each declared type gets a port block of `step` ports starting at
// base + step*position, where position is the declaration order in the
// manifest. Instance n of a type gets the block's port plus (n-1).
// 每个声明的类型从 base + step*position 起获得 step 个端口的端口块，
// position 是清单中的声明顺序。类型的第 n 个实例获得块内端口加 (n-1)。
func ExpandFormation(pf *procfile.Procfile, f Formation, basePort, step int) []Instance {
	var instances []Instance
	for pos, entry := range pf.Entries {
		count := f.Count(entry.Name)
		blockStart := basePort + step*pos
		for i := 1; i <= count; i++ {
			instances = append(instances, Instance{
				Name:    fmt.Sprintf("%s.%d", entry.Name, i),
				Type:    entry.Name,
				Command: entry.Command,
				Port:    blockStart + (i - 1),
				Index:   i,
			})
		}
	}
	return instances
}

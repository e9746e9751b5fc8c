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

// Package procfile provides Procfile manifest parsing for Procmate.
// procfile 包提供 Procmate 的 Procfile 清单解析功能。
//
// A Procfile declares one process type per line:
// Procfile 每行声明一个进程类型：
//
//	<process-type>: <command>
//
// For example / 例如:
//
//	web: gunicorn main:app --worker-class sync --timeout 120
//
// The command string is opaque to the supervisor and is executed verbatim
// through the shell; options such as --timeout belong to the launched
// program, not to Procmate.
// 命令字符串对监管器是不透明的，会原样通过 shell 执行；
// --timeout 等选项属于被启动的程序，而非 Procmate。
package procfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Common errors for Procfile parsing
// Procfile 解析的常见错误
var (
	// ErrEmptyProcfile indicates the Procfile declares no process types
	// ErrEmptyProcfile 表示 Procfile 未声明任何进程类型
	ErrEmptyProcfile = errors.New("procfile: no process types declared")

	// ErrDuplicateEntry indicates the same process type is declared twice
	// ErrDuplicateEntry 表示同一进程类型被声明了两次
	ErrDuplicateEntry = errors.New("procfile: duplicate process type")

	// ErrInvalidLine indicates a line that is not a valid declaration
	// ErrInvalidLine 表示一行不是有效的声明
	ErrInvalidLine = errors.New("procfile: invalid declaration")

	// ErrEmptyCommand indicates a declaration with an empty command string
	// ErrEmptyCommand 表示声明的命令字符串为空
	ErrEmptyCommand = errors.New("procfile: empty command")

	// ErrUnknownEntry indicates a lookup for an undeclared process type
	// ErrUnknownEntry 表示查找了未声明的进程类型
	ErrUnknownEntry = errors.New("procfile: unknown process type")
)

// namePattern is the accepted shape of a process type label
// namePattern 是进程类型标签的合法形式
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Entry is a single process type declaration.
// Entry 是单个进程类型声明。
type Entry struct {
	// Name is the process type label (e.g. "web")
	// Name 是进程类型标签（例如 "web"）
	Name string `json:"name"`

	// Command is the launch command, kept verbatim
	// Command 是启动命令，保持原样
	Command string `json:"command"`

	// Line is the 1-based line number of the declaration
	// Line 是声明所在的行号（从 1 开始）
	Line int `json:"line"`
}

// Procfile is a parsed process manifest. Entries keep declaration order,
// which drives port block assignment in the supervisor.
// Procfile 是解析后的进程清单。Entries 保持声明顺序，
// 该顺序决定监管器中端口块的分配。
type Procfile struct {
	Entries []Entry `json:"entries"`

	// index maps process type name to its position in Entries
	// index 将进程类型名映射到其在 Entries 中的位置
	index map[string]int
}

// Parse reads a Procfile from r.
// Parse 从 r 读取 Procfile。
//
// Blank lines and lines starting with '#' are skipped. A '#' inside a
// command is part of the command and is NOT treated as a comment.
// 空行和以 '#' 开头的行会被跳过。命令内部的 '#' 属于命令本身，
// 不会被当作注释处理。
func Parse(r io.Reader) (*Procfile, error) {
	pf := &Procfile{index: make(map[string]int)}

	scanner := bufio.NewScanner(r)
	// Allow long command lines / 允许较长的命令行
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		name, command, ok := splitDeclaration(trimmed)
		if !ok {
			return nil, fmt.Errorf("%w: line %d: %q", ErrInvalidLine, lineNo, trimmed)
		}
		if !namePattern.MatchString(name) {
			return nil, fmt.Errorf("%w: line %d: bad process type %q", ErrInvalidLine, lineNo, name)
		}
		if command == "" {
			return nil, fmt.Errorf("%w: line %d: process type %q", ErrEmptyCommand, lineNo, name)
		}
		if _, exists := pf.index[name]; exists {
			return nil, fmt.Errorf("%w: %q (line %d)", ErrDuplicateEntry, name, lineNo)
		}

		pf.index[name] = len(pf.Entries)
		pf.Entries = append(pf.Entries, Entry{Name: name, Command: command, Line: lineNo})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("procfile: read failed: %w", err)
	}

	if len(pf.Entries) == 0 {
		return nil, ErrEmptyProcfile
	}
	return pf, nil
}

// ParseFile reads and parses the Procfile at path.
// ParseFile 读取并解析 path 处的 Procfile。
func ParseFile(path string) (*Procfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("procfile: open %s: %w", path, err)
	}
	defer f.Close()

	pf, err := Parse(f)
	if err != nil {
		return nil, err
	}
	return pf, nil
}

// splitDeclaration splits "name: command" on the first colon.
// splitDeclaration 在第一个冒号处拆分 "name: command"。
func splitDeclaration(line string) (name, command string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:idx])
	command = strings.TrimSpace(line[idx+1:])
	if name == "" {
		return "", "", false
	}
	return name, command, true
}

// Entry returns the declaration for the given process type.
// Entry 返回给定进程类型的声明。
func (p *Procfile) Entry(name string) (*Entry, error) {
	idx, ok := p.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntry, name)
	}
	return &p.Entries[idx], nil
}

// Has reports whether the process type is declared.
// Has 报告该进程类型是否已声明。
func (p *Procfile) Has(name string) bool {
	_, ok := p.index[name]
	return ok
}

// Names returns process type names in declaration order.
// Names 按声明顺序返回进程类型名。
func (p *Procfile) Names() []string {
	names := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		names = append(names, e.Name)
	}
	return names
}

// Len returns the number of declared process types.
// Len 返回声明的进程类型数量。
func (p *Procfile) Len() int {
	return len(p.Entries)
}

// String renders the manifest back into Procfile syntax.
// String 将清单渲染回 Procfile 语法。
func (p *Procfile) String() string {
	var sb strings.Builder
	for _, e := range p.Entries {
		sb.WriteString(e.Name)
		sb.WriteString(": ")
		sb.WriteString(e.Command)
		sb.WriteString("\n")
	}
	return sb.String()
}

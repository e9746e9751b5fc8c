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

package procfile

import (
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// Property: For any set of distinct valid process types with non-empty
// commands, rendering a manifest and parsing it back SHALL preserve every
// name, command, and the declaration order.
// 属性：对于任意一组互不相同的有效进程类型及非空命令，
// 渲染清单并解析回来应该保留每个名称、命令和声明顺序。
func TestProperty_ManifestRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(
			rapid.StringMatching(`[A-Za-z0-9_-]{1,16}`), 1, 8,
			func(s string) string { return s },
		).Draw(t, "names")

		// Commands are arbitrary printable text without newlines or a
		// leading '#'. / 命令是不含换行、不以 '#' 开头的任意可打印文本。
		commands := make([]string, len(names))
		for i := range names {
			commands[i] = rapid.StringMatching(`[a-zA-Z0-9][a-zA-Z0-9 ./:=_"'$-]{0,60}`).Draw(t, fmt.Sprintf("command%d", i))
		}

		var sb strings.Builder
		for i, name := range names {
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(commands[i])
			sb.WriteString("\n")
		}

		pf, err := Parse(strings.NewReader(sb.String()))
		if err != nil {
			t.Fatalf("Failed to parse generated manifest: %v\nManifest:\n%s", err, sb.String())
		}

		if pf.Len() != len(names) {
			t.Fatalf("Entry count mismatch: want %d, got %d", len(names), pf.Len())
		}
		for i, name := range names {
			if pf.Entries[i].Name != name {
				t.Fatalf("Order not preserved at %d: want %q, got %q", i, name, pf.Entries[i].Name)
			}
			// Parsing trims surrounding whitespace, nothing else
			// 解析只去掉首尾空白，不做其他改动
			if pf.Entries[i].Command != strings.TrimSpace(commands[i]) {
				t.Fatalf("Command mangled for %q: want %q, got %q",
					name, strings.TrimSpace(commands[i]), pf.Entries[i].Command)
			}
		}

		// Rendering and re-parsing is stable / 渲染后再次解析保持稳定
		again, err := Parse(strings.NewReader(pf.String()))
		if err != nil {
			t.Fatalf("Failed to re-parse rendered manifest: %v", err)
		}
		for i := range pf.Entries {
			if again.Entries[i] != (Entry{Name: pf.Entries[i].Name, Command: pf.Entries[i].Command, Line: again.Entries[i].Line}) {
				t.Fatalf("Round-trip mismatch at %d: %+v vs %+v", i, pf.Entries[i], again.Entries[i])
			}
		}
	})
}

// Property: Parse SHALL never panic and never return both a nil error and
// an empty manifest, whatever bytes it is fed.
// 属性：无论输入什么字节，Parse 都不应 panic，
// 也不应在返回 nil 错误的同时返回空清单。
func TestProperty_ParseNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		input := rapid.String().Draw(t, "input")

		pf, err := Parse(strings.NewReader(input))
		if err == nil && (pf == nil || pf.Len() == 0) {
			t.Fatalf("Parse returned nil error with empty manifest for %q", input)
		}
		if err != nil && pf != nil {
			t.Fatalf("Parse returned both a manifest and an error for %q", input)
		}
	})
}

// Property: ExpandCommand is a no-op for commands without '$'.
// 属性：对不含 '$' 的命令，ExpandCommand 不做任何改动。
func TestProperty_ExpandWithoutReferences(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		command := rapid.StringMatching(`[a-zA-Z0-9 ./:=_-]{0,80}`).Draw(t, "command")
		env := map[string]string{
			rapid.StringMatching(`[A-Z_]{1,10}`).Draw(t, "key"): rapid.String().Draw(t, "value"),
		}

		if got := ExpandCommand(command, env); got != command {
			t.Fatalf("Expansion changed a reference-free command: %q -> %q", command, got)
		}
	})
}

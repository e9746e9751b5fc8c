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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceManifest is the manifest shape Procmate was built to consume.
// referenceManifest 是 Procmate 设计用来消费的清单形态。
const referenceManifest = `# Procfile for gunicorn deployment
# Uses a synchronous worker class with a 120 second request timeout.

web: gunicorn main:app --worker-class sync --timeout 120
`

// TestParse_ReferenceManifest verifies the single-declaration reference
// manifest parses into exactly one entry with the command kept verbatim.
// TestParse_ReferenceManifest 验证单声明参考清单解析为恰好一个条目，
// 且命令保持原样。
func TestParse_ReferenceManifest(t *testing.T) {
	pf, err := Parse(strings.NewReader(referenceManifest))
	require.NoError(t, err)
	require.Equal(t, 1, pf.Len())

	entry, err := pf.Entry("web")
	require.NoError(t, err)
	assert.Equal(t, "web", entry.Name)
	assert.Equal(t, "gunicorn main:app --worker-class sync --timeout 120", entry.Command)
	assert.Equal(t, 4, entry.Line)
}

// TestParse_MultipleEntries tests a multi-process manifest keeps order
// TestParse_MultipleEntries 测试多进程清单保持顺序
func TestParse_MultipleEntries(t *testing.T) {
	input := "web: gunicorn main:app\nworker: celery -A main worker\nclock: python clock.py\n"
	pf, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"web", "worker", "clock"}, pf.Names())
	assert.True(t, pf.Has("worker"))
	assert.False(t, pf.Has("beat"))
}

// TestParse_CommentsAndBlankLines tests skipping of non-declarations
// TestParse_CommentsAndBlankLines 测试跳过非声明行
func TestParse_CommentsAndBlankLines(t *testing.T) {
	input := "# comment\n\n  \nweb: true\n# trailing comment\n"
	pf, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, pf.Len())
}

// TestParse_InlineHashIsCommand verifies '#' inside a command is kept
// TestParse_InlineHashIsCommand 验证命令内部的 '#' 会被保留
func TestParse_InlineHashIsCommand(t *testing.T) {
	pf, err := Parse(strings.NewReader(`web: echo "route #1"`))
	require.NoError(t, err)

	entry, err := pf.Entry("web")
	require.NoError(t, err)
	assert.Equal(t, `echo "route #1"`, entry.Command)
}

// TestParse_Errors tests the rejection cases
// TestParse_Errors 测试拒绝场景
func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty input", "", ErrEmptyProcfile},
		{"comments only", "# nothing here\n", ErrEmptyProcfile},
		{"missing colon", "web gunicorn main:app\n", ErrInvalidLine},
		{"bad process type", "we b: gunicorn\n", ErrInvalidLine},
		{"empty command", "web:\n", ErrEmptyCommand},
		{"empty command whitespace", "web:    \n", ErrEmptyCommand},
		{"duplicate entry", "web: a\nweb: b\n", ErrDuplicateEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestParseFile tests loading from disk
// TestParseFile 测试从磁盘加载
func TestParseFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "Procfile")
	require.NoError(t, os.WriteFile(path, []byte(referenceManifest), 0644))

	pf, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, pf.Len())

	_, err = ParseFile(filepath.Join(tmpDir, "missing"))
	assert.Error(t, err)
}

// TestEntry_Unknown tests lookup of an undeclared process type
// TestEntry_Unknown 测试查找未声明的进程类型
func TestEntry_Unknown(t *testing.T) {
	pf, err := Parse(strings.NewReader("web: true\n"))
	require.NoError(t, err)

	_, err = pf.Entry("worker")
	assert.ErrorIs(t, err, ErrUnknownEntry)
}

// TestString_RoundTrip tests rendering back to Procfile syntax
// TestString_RoundTrip 测试渲染回 Procfile 语法
func TestString_RoundTrip(t *testing.T) {
	input := "web: gunicorn main:app --worker-class sync --timeout 120\nworker: celery worker\n"
	pf, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	again, err := Parse(strings.NewReader(pf.String()))
	require.NoError(t, err)
	assert.Equal(t, pf.Entries[0].Command, again.Entries[0].Command)
	assert.Equal(t, pf.Names(), again.Names())
}

// TestLoadEnv tests dotenv loading and the missing-file case
// TestLoadEnv 测试 dotenv 加载以及文件缺失的情况
func TestLoadEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PORT=8080\nDEBUG=true\n"), 0644))

	env, err := LoadEnv(envPath)
	require.NoError(t, err)
	assert.Equal(t, "8080", env["PORT"])
	assert.Equal(t, "true", env["DEBUG"])

	// Missing file yields an empty environment / 文件缺失时返回空环境
	env, err = LoadEnv(filepath.Join(tmpDir, "absent.env"))
	require.NoError(t, err)
	assert.Empty(t, env)
}

// TestMergeEnv tests override layering
// TestMergeEnv 测试覆盖叠加
func TestMergeEnv(t *testing.T) {
	base := map[string]string{"A": "1", "B": "2"}
	merged := MergeEnv(base, map[string]string{"B": "3", "C": "4"})

	assert.Equal(t, "1", merged["A"])
	assert.Equal(t, "3", merged["B"])
	assert.Equal(t, "4", merged["C"])
	// base must not be mutated / base 不能被修改
	assert.Equal(t, "2", base["B"])
}

// TestExpandCommand tests $VAR and ${VAR} expansion
// TestExpandCommand 测试 $VAR 和 ${VAR} 展开
func TestExpandCommand(t *testing.T) {
	env := map[string]string{"PORT": "5000", "HOST": "0.0.0.0"}

	out := ExpandCommand("gunicorn main:app --bind $HOST:${PORT}", env)
	assert.Equal(t, "gunicorn main:app --bind 0.0.0.0:5000", out)

	// Unknown variables expand to empty, like the shell
	// 未知变量展开为空，与 shell 一致
	out = ExpandCommand("run --flag=$MISSING", env)
	assert.Equal(t, "run --flag=", out)
}

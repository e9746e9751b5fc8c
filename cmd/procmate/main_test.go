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

package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setFlags applies command line overrides and restores them afterwards.
// setFlags 应用命令行覆盖并在测试结束后恢复。
func setFlags(t *testing.T, procfile, formation string, port int) {
	t.Helper()
	oldConfig, oldProcfile, oldFormation, oldPort := configFile, procfilePath, formationSpec, basePort
	t.Cleanup(func() {
		configFile, procfilePath, formationSpec, basePort = oldConfig, oldProcfile, oldFormation, oldPort
	})

	// Point at a nonexistent config so only defaults and flags apply
	// 指向不存在的配置文件，仅默认值和标志生效
	configFile = filepath.Join(t.TempDir(), "no-such-config.yaml")
	procfilePath = procfile
	formationSpec = formation
	basePort = port
}

func writeProcfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Procfile")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// captureStdout collects everything fn prints to stdout.
// captureStdout 收集 fn 打印到标准输出的全部内容。
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	require.NoError(t, w.Close())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

// TestLoadConfigOverrides 测试命令行标志覆盖配置
func TestLoadConfigOverrides(t *testing.T) {
	path := writeProcfile(t, "web: sleep 60\n")
	setFlags(t, path, "web=2", 9000)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Procfile.Path)
	assert.Equal(t, "web=2", cfg.Procfile.Formation)
	assert.Equal(t, 9000, cfg.Ports.Base)
}

// TestRunCheck 测试 check 子命令
func TestRunCheck(t *testing.T) {
	path := writeProcfile(t, "web: gunicorn main:app\nworker: celery worker\n")

	t.Run("有效清单通过", func(t *testing.T) {
		setFlags(t, path, "web=2", 0)
		assert.NoError(t, runCheck(checkCmd, nil))
	})

	t.Run("未知类型拒绝", func(t *testing.T) {
		setFlags(t, path, "ghost=1", 0)
		assert.Error(t, runCheck(checkCmd, nil))
	})

	t.Run("语法错误拒绝", func(t *testing.T) {
		bad := writeProcfile(t, "not a declaration\n")
		setFlags(t, bad, "", 0)
		assert.Error(t, runCheck(checkCmd, nil))
	})

	t.Run("env 引用展开显示", func(t *testing.T) {
		dir := t.TempDir()
		pf := filepath.Join(dir, "Procfile")
		require.NoError(t, os.WriteFile(pf, []byte("web: gunicorn $APP_MODULE --bind :$PORT\n"), 0644))
		envFile := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(envFile, []byte("APP_MODULE=main:app\n"), 0644))

		setFlags(t, pf, "", 0)
		oldEnv := envFilePath
		t.Cleanup(func() { envFilePath = oldEnv })
		envFilePath = envFile

		out := captureStdout(t, func() {
			require.NoError(t, runCheck(checkCmd, nil))
		})
		// The plan shows the command as the shell will run it
		// 执行计划按 shell 实际运行的形式显示命令
		assert.Contains(t, out, "gunicorn main:app --bind :5000")
	})
}

// TestRunExport 测试 export 子命令生成 systemd 单元
func TestRunExport(t *testing.T) {
	path := writeProcfile(t, "web: gunicorn main:app\n")
	setFlags(t, path, "web=2", 0)

	oldDir, oldApp := exportDir, exportApp
	t.Cleanup(func() { exportDir, exportApp = oldDir, oldApp })
	exportDir = filepath.Join(t.TempDir(), "units")
	exportApp = "myapp"

	require.NoError(t, runExport(exportCmd, nil))

	// Per-instance units with PORT injected / 带 PORT 注入的实例单元
	data, err := os.ReadFile(filepath.Join(exportDir, "myapp-web.1.service"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Environment=PORT=5000")
	assert.Contains(t, string(data), "gunicorn main:app")

	data, err = os.ReadFile(filepath.Join(exportDir, "myapp-web.2.service"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Environment=PORT=5001")

	// Target unit groups every instance / target 单元聚合所有实例
	data, err = os.ReadFile(filepath.Join(exportDir, "myapp.target"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "myapp-web.1.service")
	assert.Contains(t, string(data), "myapp-web.2.service")
}

// TestHashTokenCommand 测试 hash-token 子命令
func TestHashTokenCommand(t *testing.T) {
	err := hashTokenCmd.RunE(hashTokenCmd, []string{"secret"})
	assert.NoError(t, err)
}

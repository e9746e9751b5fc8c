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

// Package main is the entry point for the Procmate supervisor.
// main 包是 Procmate 监管器的入口点。
//
// Procmate is a Procfile-driven process supervisor that:
// Procmate 是一个 Procfile 驱动的进程监管器，负责：
// - Launches every process type declared in a Procfile / 启动 Procfile 中声明的每个进程类型
// - Injects a deterministic PORT into each instance / 为每个实例注入确定性的 PORT
// - Restarts crashed processes per the restart policy / 按重启策略重启崩溃的进程
// - Exposes an HTTP control API / 暴露 HTTP 控制 API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/procmate/procmate/internal/apps/auth"
	"github.com/procmate/procmate/internal/apps/run"
	"github.com/procmate/procmate/internal/config"
	"github.com/procmate/procmate/internal/db"
	"github.com/procmate/procmate/internal/events"
	"github.com/procmate/procmate/internal/logger"
	"github.com/procmate/procmate/internal/otel_trace"
	"github.com/procmate/procmate/internal/procfile"
	"github.com/procmate/procmate/internal/router"
	"github.com/procmate/procmate/internal/supervisor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Command line flags
// 命令行标志
var (
	configFile    string
	procfilePath  string
	formationSpec string
	envFilePath   string
	basePort      int
	watchManifest bool

	exportDir  string
	exportApp  string
	exportUser string
)

// rootCmd is the root command; running it supervises the Procfile.
// rootCmd 是根命令；运行它即监管 Procfile。
var rootCmd = &cobra.Command{
	Use:   "procmate",
	Short: "Procmate - Procfile-driven process supervisor",
	Long: `Procmate supervises the processes declared in a Procfile.
Procmate 监管 Procfile 中声明的进程。

It starts one or more instances per process type, assigns each a
deterministic PORT, restarts crashed instances, records run history
and exposes an HTTP control API.
它为每个进程类型启动一个或多个实例，为每个实例分配确定性的 PORT，
重启崩溃的实例，记录运行历史并暴露 HTTP 控制 API。`,
	RunE:         runSupervisor,
	SilenceUsage: true,
}

// checkCmd validates the manifest without starting anything.
// checkCmd 校验清单而不启动任何进程。
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the Procfile and formation / 校验 Procfile 与 formation",
	RunE:  runCheck,
}

// exportCmd renders systemd units for the current formation.
// exportCmd 为当前 formation 生成 systemd 单元文件。
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the formation as systemd units / 将 formation 导出为 systemd 单元",
	RunE:  runExport,
}

// hashTokenCmd prints a bcrypt hash for use as api.token_hash.
// hashTokenCmd 打印用于 api.token_hash 的 bcrypt 哈希。
var hashTokenCmd = &cobra.Command{
	Use:   "hash-token <token>",
	Short: "Hash an API token for the config file / 为配置文件哈希 API 令牌",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashToken(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash token: %w / 哈希令牌失败：%w", err, err)
		}
		fmt.Println(hash)
		return nil
	},
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information / 打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Procmate\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Go Version: %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	// Flags shared by run/check/export
	// run/check/export 共享的标志
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: procmate.yaml)")
	rootCmd.PersistentFlags().StringVarP(&procfilePath, "procfile", "f", "", "Procfile path (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&formationSpec, "formation", "m", "", "formation, e.g. \"web=2,worker=1\" (overrides config)")
	rootCmd.PersistentFlags().StringVar(&envFilePath, "env", "", "dotenv file path (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&basePort, "port", "p", 0, "base port for PORT assignment (overrides config)")
	rootCmd.Flags().BoolVarP(&watchManifest, "watch", "w", false, "reload when the Procfile or env file changes")

	// Export flags / 导出标志
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "./systemd", "output directory for unit files")
	exportCmd.Flags().StringVarP(&exportApp, "app", "a", "procmate", "application name used in unit file names")
	exportCmd.Flags().StringVarP(&exportUser, "user", "u", "", "User= directive for the units (empty omits it)")

	// Add subcommands
	// 添加子命令
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(hashTokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration and applies command line overrides.
// loadConfig 加载配置并应用命令行覆盖。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w / 加载配置失败：%w", err, err)
	}

	// Command line arguments take the highest priority
	// 命令行参数优先级最高
	if procfilePath != "" {
		cfg.Procfile.Path = procfilePath
	}
	if formationSpec != "" {
		cfg.Procfile.Formation = formationSpec
	}
	if envFilePath != "" {
		cfg.Procfile.EnvFile = envFilePath
	}
	if basePort > 0 {
		cfg.Ports.Base = basePort
	}
	if watchManifest {
		cfg.Procfile.Watch = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w / 无效配置：%w", err, err)
	}
	return cfg, nil
}

// runSupervisor is the main entry point for the supervisor service.
// runSupervisor 是监管器服务的主入口点。
func runSupervisor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w / 构建日志器失败：%w", err, err)
	}
	defer log.Sync() //nolint:errcheck

	// Initialize tracing after config is loaded
	// 配置加载后初始化追踪
	otel_trace.Init(cfg.Telemetry)

	// Cancelled on SIGINT/SIGTERM / 收到 SIGINT/SIGTERM 时取消
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("procmate starting",
		zap.String("version", Version),
		zap.String("procfile", cfg.Procfile.Path),
		zap.String("formation", cfg.Procfile.Formation),
		zap.Int("base_port", cfg.Ports.Base))

	// Step 1: Run history storage (optional)
	// 步骤 1：运行历史存储（可选）
	var repo *run.Repository
	if cfg.Database.Enabled {
		if err := db.InitDatabase(cfg.Database); err != nil {
			return fmt.Errorf("failed to init database: %w / 初始化数据库失败：%w", err, err)
		}
		if err := db.GetGlobalDB().AutoMigrate(&run.ProcessRun{}, &run.EventLog{}); err != nil {
			return fmt.Errorf("failed to migrate database: %w / 数据库迁移失败：%w", err, err)
		}
		repo = run.NewRepository(db.GetGlobalDB())
	}

	// Step 2: Event bus (in-memory, or Redis when enabled)
	// 步骤 2：事件总线（内存，启用时为 Redis）
	bus, err := events.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to init event bus: %w / 初始化事件总线失败：%w", err, err)
	}

	// Step 3: Supervisor over the Procfile
	// 步骤 3：基于 Procfile 的监管器
	sup, err := supervisor.New(cfg, log, bus, repo)
	if err != nil {
		return fmt.Errorf("failed to build supervisor: %w / 构建监管器失败：%w", err, err)
	}
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w / 启动监管器失败：%w", err, err)
	}

	// Step 4: Control API (optional)
	// 步骤 4：控制 API（可选）
	serveErr := make(chan error, 1)
	if cfg.API.Enabled {
		engine := router.New(cfg, log, sup, repo)
		go func() {
			serveErr <- router.Serve(ctx, cfg, log, engine)
		}()
	}

	log.Info("procmate started", zap.Int("instances", len(sup.Instances())))

	// Wait for shutdown signal or API server failure
	// 等待关闭信号或 API 服务器失败
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received / 收到关闭信号")
	case err := <-serveErr:
		if err != nil {
			log.Error("control API failed", zap.Error(err))
		}
	}

	// Graceful shutdown with a bounded window
	// 在有限窗口内优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Graceful+10*time.Second)
	defer cancel()

	if err := sup.Stop(shutdownCtx); err != nil {
		log.Warn("error stopping supervisor", zap.Error(err))
	}
	if err := bus.Close(); err != nil {
		log.Warn("error closing event bus", zap.Error(err))
	}
	if cfg.Database.Enabled {
		if err := db.CloseDatabase(); err != nil {
			log.Warn("error closing database", zap.Error(err))
		}
	}
	otel_trace.Shutdown(shutdownCtx)

	log.Info("procmate shutdown complete / 关闭完成")
	return nil
}

// runCheck parses and validates the manifest, then prints the plan.
// runCheck 解析并校验清单，然后打印执行计划。
func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pf, err := procfile.ParseFile(cfg.Procfile.Path)
	if err != nil {
		return fmt.Errorf("invalid Procfile: %w / 无效的 Procfile：%w", err, err)
	}

	formation, err := supervisor.ParseFormation(cfg.Procfile.Formation)
	if err != nil {
		return fmt.Errorf("invalid formation: %w / 无效的 formation：%w", err, err)
	}
	if err := formation.Validate(pf); err != nil {
		return fmt.Errorf("invalid formation: %w / 无效的 formation：%w", err, err)
	}

	env, err := procfile.LoadEnv(cfg.Procfile.EnvFile)
	if err != nil {
		return fmt.Errorf("invalid env file: %w / 无效的 env 文件：%w", err, err)
	}

	instances := supervisor.ExpandFormation(pf, formation, cfg.Ports.Base, cfg.Ports.Step)

	fmt.Printf("Procfile: %s (%d process types) / Procfile：%s（%d 个进程类型）\n",
		cfg.Procfile.Path, pf.Len(), cfg.Procfile.Path, pf.Len())
	for _, inst := range instances {
		// Show each command as the shell will see it, references resolved
		// 按 shell 将看到的形式显示命令，引用已解析
		command := procfile.ExpandCommand(inst.Command, procfile.MergeEnv(env, map[string]string{
			"PORT": strconv.Itoa(inst.Port),
			"PS":   inst.Name,
		}))
		fmt.Printf("  %-12s PORT=%-6d %s\n", inst.Name, inst.Port, command)
	}
	fmt.Println("OK / 校验通过")
	return nil
}

// runExport writes one systemd service unit per instance plus a target
// unit that groups them.
// runExport 为每个实例写入一个 systemd service 单元，并生成一个
// 聚合它们的 target 单元。
func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pf, err := procfile.ParseFile(cfg.Procfile.Path)
	if err != nil {
		return fmt.Errorf("invalid Procfile: %w / 无效的 Procfile：%w", err, err)
	}
	formation, err := supervisor.ParseFormation(cfg.Procfile.Formation)
	if err != nil {
		return fmt.Errorf("invalid formation: %w / 无效的 formation：%w", err, err)
	}
	if err := formation.Validate(pf); err != nil {
		return fmt.Errorf("invalid formation: %w / 无效的 formation：%w", err, err)
	}

	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w / 创建输出目录失败：%w", err, err)
	}

	workDir, err := filepath.Abs(filepath.Dir(cfg.Procfile.Path))
	if err != nil {
		return err
	}

	instances := supervisor.ExpandFormation(pf, formation, cfg.Ports.Base, cfg.Ports.Step)
	target := exportApp + ".target"
	var unitNames []string

	for _, inst := range instances {
		// web.1 -> procmate-web.1.service
		unitName := fmt.Sprintf("%s-%s.service", exportApp, inst.Name)
		unitNames = append(unitNames, unitName)

		var b strings.Builder
		fmt.Fprintf(&b, "[Unit]\n")
		fmt.Fprintf(&b, "Description=%s %s\n", exportApp, inst.Name)
		fmt.Fprintf(&b, "PartOf=%s\n\n", target)
		fmt.Fprintf(&b, "[Service]\n")
		if exportUser != "" {
			fmt.Fprintf(&b, "User=%s\n", exportUser)
		}
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", workDir)
		fmt.Fprintf(&b, "Environment=PORT=%d\n", inst.Port)
		if cfg.Procfile.EnvFile != "" {
			envAbs, err := filepath.Abs(cfg.Procfile.EnvFile)
			if err == nil {
				fmt.Fprintf(&b, "EnvironmentFile=-%s\n", envAbs)
			}
		}
		fmt.Fprintf(&b, "ExecStart=/bin/sh -c %q\n", inst.Command)
		fmt.Fprintf(&b, "Restart=on-failure\n")
		fmt.Fprintf(&b, "TimeoutStopSec=%d\n\n", int(cfg.Timeouts.Graceful.Seconds()))
		fmt.Fprintf(&b, "[Install]\n")
		fmt.Fprintf(&b, "WantedBy=%s\n", target)

		path := filepath.Join(exportDir, unitName)
		if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w / 写入 %s 失败：%w", unitName, err, unitName, err)
		}
		fmt.Printf("wrote %s\n", path)
	}

	// Target unit pulling in every instance unit
	// 聚合所有实例单元的 target 单元
	var b strings.Builder
	fmt.Fprintf(&b, "[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", exportApp)
	fmt.Fprintf(&b, "Wants=%s\n", strings.Join(unitNames, " "))
	targetPath := filepath.Join(exportDir, target)
	if err := os.WriteFile(targetPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w / 写入 %s 失败：%w", target, err, target, err)
	}
	fmt.Printf("wrote %s\n", targetPath)

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

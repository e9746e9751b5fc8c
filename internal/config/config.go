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

// Package config provides configuration management for Procmate.
// config 包提供 Procmate 的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables / 环境变量
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath      = "procmate.yaml"
	DefaultProcfilePath    = "Procfile"
	DefaultBasePort        = 5000
	DefaultPortStep        = 100
	DefaultStartTimeout    = 60 * time.Second
	DefaultGracefulTimeout = 30 * time.Second
	DefaultMonitorInterval = 5 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogDir          = "./logs"
	DefaultLogMaxSize      = 100 // MB
	DefaultLogMaxBackups   = 3
	DefaultLogMaxAge       = 7 // days
	DefaultAPIAddr         = "127.0.0.1:5050"
	DefaultSQLitePath      = "./data/procmate.db"
)

// Config represents the Procmate configuration
// Config 表示 Procmate 配置
type Config struct {
	// Procfile configuration / Procfile 配置
	Procfile ProcfileConfig `mapstructure:"procfile"`

	// Ports configuration / 端口配置
	Ports PortsConfig `mapstructure:"ports"`

	// Timeouts configuration / 超时配置
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`

	// Restart policy configuration / 重启策略配置
	Restart RestartConfig `mapstructure:"restart"`

	// Log configuration / 日志配置
	Log LogConfig `mapstructure:"log"`

	// API configuration / API 配置
	API APIConfig `mapstructure:"api"`

	// Database configuration / 数据库配置
	Database DatabaseConfig `mapstructure:"database"`

	// Redis configuration / Redis 配置
	Redis RedisConfig `mapstructure:"redis"`

	// Telemetry configuration / 遥测配置
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ProcfileConfig contains manifest settings
// ProcfileConfig 包含清单设置
type ProcfileConfig struct {
	// Path is the Procfile location / Path 是 Procfile 的位置
	Path string `mapstructure:"path"`

	// EnvFile is the dotenv file loaded into every process
	// EnvFile 是加载到每个进程的 dotenv 文件
	EnvFile string `mapstructure:"env_file"`

	// Formation is the default instance count per process type,
	// e.g. "web=2,worker=1". Empty means one instance each.
	// Formation 是每个进程类型的默认实例数，例如 "web=2,worker=1"。
	// 为空表示每个类型一个实例。
	Formation string `mapstructure:"formation"`

	// Watch enables reload on Procfile/.env changes
	// Watch 启用 Procfile/.env 变更时的重载
	Watch bool `mapstructure:"watch"`
}

// PortsConfig contains PORT assignment settings
// PortsConfig 包含 PORT 分配设置
type PortsConfig struct {
	// Base is the first port handed to the first declared process type
	// Base 是分配给第一个声明的进程类型的起始端口
	Base int `mapstructure:"base"`

	// Step is the port block size reserved per process type
	// Step 是为每个进程类型保留的端口块大小
	Step int `mapstructure:"step"`
}

// TimeoutsConfig contains process lifecycle timeouts
// TimeoutsConfig 包含进程生命周期超时
type TimeoutsConfig struct {
	// Start is the maximum time to wait for an instance to settle out of
	// a transitional status before relaunching it
	// Start 是重启前等待实例从过渡状态稳定下来的最长时间
	Start time.Duration `mapstructure:"start"`

	// Graceful is the SIGTERM grace period before SIGKILL
	// Graceful 是发送 SIGKILL 前的 SIGTERM 宽限期
	Graceful time.Duration `mapstructure:"graceful"`

	// MonitorInterval is the alive-check interval
	// MonitorInterval 是存活检查间隔
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
}

// RestartConfig contains the crash restart policy
// RestartConfig 包含崩溃重启策略
type RestartConfig struct {
	// Enabled turns automatic restart on / Enabled 启用自动重启
	Enabled bool `mapstructure:"enabled"`

	// Delay before attempting a restart / 尝试重启前的延迟
	Delay time.Duration `mapstructure:"delay"`

	// MaxRestarts within the window before cooling down
	// MaxRestarts 是窗口内进入冷却前的最大重启次数
	MaxRestarts int `mapstructure:"max_restarts"`

	// Window is the sliding window for counting restarts
	// Window 是统计重启次数的滑动窗口
	Window time.Duration `mapstructure:"window"`

	// Cooldown after the limit is hit / 达到限制后的冷却时间
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level"`

	// File is the supervisor's own log file; empty logs to stderr
	// File 是监管器自身的日志文件；为空时输出到 stderr
	File string `mapstructure:"file"`

	// Dir is where per-process output files are written
	// Dir 是每个进程输出文件的写入目录
	Dir string `mapstructure:"dir"`

	// MaxSize is the maximum size of the log file in MB before rotation
	// MaxSize 是日志文件轮转前的最大大小（MB）
	MaxSize int `mapstructure:"max_size"`

	// MaxBackups is the maximum number of old log files to retain
	// MaxBackups 是保留的旧日志文件的最大数量
	MaxBackups int `mapstructure:"max_backups"`

	// MaxAge is the maximum number of days to retain old log files
	// MaxAge 是保留旧日志文件的最大天数
	MaxAge int `mapstructure:"max_age"`
}

// APIConfig contains control API settings
// APIConfig 包含控制 API 设置
type APIConfig struct {
	// Enabled starts the HTTP control API / Enabled 启动 HTTP 控制 API
	Enabled bool `mapstructure:"enabled"`

	// Addr is the listen address / Addr 是监听地址
	Addr string `mapstructure:"addr"`

	// Token is the bearer token; empty disables authentication
	// Token 是 Bearer 令牌；为空时禁用认证
	Token string `mapstructure:"token"`

	// TokenHash is a bcrypt hash of the token, preferred over Token
	// TokenHash 是令牌的 bcrypt 哈希，优先于 Token 使用
	TokenHash string `mapstructure:"token_hash"`
}

// DatabaseConfig contains run history storage settings
// DatabaseConfig 包含运行历史存储设置
type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Type            string `mapstructure:"type"`        // sqlite, mysql, postgres
	SQLitePath      string `mapstructure:"sqlite_path"` // SQLite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConn     int    `mapstructure:"max_idle_conn"`
	MaxOpenConn     int    `mapstructure:"max_open_conn"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// RedisConfig contains event bus backend settings
// RedisConfig 包含事件总线后端设置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// TelemetryConfig contains OpenTelemetry settings
// TelemetryConfig 包含 OpenTelemetry 设置
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	// Set config file path / 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Check environment variable / 检查环境变量
		envPath := os.Getenv("PROCMATE_CONFIG_PATH")
		if envPath != "" {
			v.SetConfigFile(envPath)
		} else {
			v.SetConfigFile(DefaultConfigPath)
		}
	}

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix("PROCMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file / 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if we have defaults
		// 如果有默认值，配置文件未找到不是错误
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			// Check if file exists / 检查文件是否存在
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, use defaults / 文件不存在，使用默认值
		}
	}

	// Unmarshal config / 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Procfile defaults / Procfile 默认值
	v.SetDefault("procfile.path", DefaultProcfilePath)
	v.SetDefault("procfile.env_file", ".env")
	v.SetDefault("procfile.formation", "")
	v.SetDefault("procfile.watch", false)

	// Port defaults / 端口默认值
	v.SetDefault("ports.base", DefaultBasePort)
	v.SetDefault("ports.step", DefaultPortStep)

	// Timeout defaults / 超时默认值
	v.SetDefault("timeouts.start", DefaultStartTimeout)
	v.SetDefault("timeouts.graceful", DefaultGracefulTimeout)
	v.SetDefault("timeouts.monitor_interval", DefaultMonitorInterval)

	// Restart defaults / 重启默认值
	v.SetDefault("restart.enabled", true)
	v.SetDefault("restart.delay", 10*time.Second)
	v.SetDefault("restart.max_restarts", 3)
	v.SetDefault("restart.window", 5*time.Minute)
	v.SetDefault("restart.cooldown", 30*time.Minute)

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("log.dir", DefaultLogDir)
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)

	// API defaults / API 默认值
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", DefaultAPIAddr)
	v.SetDefault("api.token", "")
	v.SetDefault("api.token_hash", "")

	// Database defaults / 数据库默认值
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite_path", DefaultSQLitePath)
	v.SetDefault("database.max_idle_conn", 5)
	v.SetDefault("database.max_open_conn", 20)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.log_level", "warn")

	// Redis defaults / Redis 默认值
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	// Telemetry defaults / 遥测默认值
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "127.0.0.1:4317")
	v.SetDefault("telemetry.insecure", true)
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	// Validate Procfile path / 验证 Procfile 路径
	if c.Procfile.Path == "" {
		return errors.New("procfile.path is required")
	}

	// Validate port block / 验证端口块
	if c.Ports.Base < 1 || c.Ports.Base > 65535 {
		return fmt.Errorf("ports.base must be in [1, 65535], got %d", c.Ports.Base)
	}
	if c.Ports.Step < 1 {
		return fmt.Errorf("ports.step must be positive, got %d", c.Ports.Step)
	}

	// Validate timeouts / 验证超时
	if c.Timeouts.Graceful < time.Second {
		return errors.New("timeouts.graceful must be at least 1 second")
	}
	if c.Timeouts.MonitorInterval < time.Second {
		return errors.New("timeouts.monitor_interval must be at least 1 second")
	}

	// Validate restart policy / 验证重启策略
	if c.Restart.Enabled {
		if c.Restart.MaxRestarts < 1 {
			return errors.New("restart.max_restarts must be at least 1")
		}
		if c.Restart.Window <= 0 {
			return errors.New("restart.window must be positive")
		}
	}

	// Validate log level / 验证日志级别
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	// Validate API settings / 验证 API 设置
	if c.API.Enabled && c.API.Addr == "" {
		return errors.New("api.addr is required when the API is enabled")
	}

	// Validate database type / 验证数据库类型
	if c.Database.Enabled {
		switch c.Database.Type {
		case "", "sqlite", "mysql", "postgres":
		default:
			return fmt.Errorf("unsupported database type: %s (supported: sqlite, mysql, postgres)", c.Database.Type)
		}
	}

	return nil
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Procfile: %s, Formation: %q, Ports.Base: %d, API.Addr: %s, Log.Level: %s}",
		c.Procfile.Path,
		c.Procfile.Formation,
		c.Ports.Base,
		c.API.Addr,
		c.Log.Level,
	)
}

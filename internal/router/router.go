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

// Package router 提供 HTTP 路由配置
// Package router provides HTTP routing configuration
package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/procmate/procmate/internal/apps/auth"
	"github.com/procmate/procmate/internal/apps/health"
	"github.com/procmate/procmate/internal/apps/proc"
	"github.com/procmate/procmate/internal/apps/run"
	"github.com/procmate/procmate/internal/config"
	"github.com/procmate/procmate/internal/logger"
	"github.com/procmate/procmate/internal/supervisor"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// New builds the control API router.
// New 构建控制 API 路由。
//
// The run history routes are only mounted when a repository is supplied
// (i.e. the database is enabled).
// 仅在提供仓库（即数据库已启用）时挂载运行历史路由。
func New(cfg *config.Config, log *zap.Logger, sup *supervisor.Supervisor, runRepo *run.Repository) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// 补充中间件；请求日志经 otelzap 桥接，挂到 otelgin 创建的 span 上
	// Add middleware; request logs go through the otelzap bridge so they
	// attach to the span otelgin created
	r.Use(otelgin.Middleware("procmate"), loggerMiddleware(logger.NewTraced(log)))

	procHandler := proc.NewHandler(sup)

	apiV1Router := r.Group("/api/v1")
	{
		// Health（无需认证）
		// Health (no authentication required)
		apiV1Router.GET("/health", health.Health)

		// 其余路由受 Bearer 令牌保护
		// Remaining routes are protected by the bearer token
		protected := apiV1Router.Group("")
		protected.Use(auth.TokenRequired(cfg.API))
		{
			// Manifest 清单
			protected.GET("/manifest", procHandler.GetManifest)
			protected.POST("/reload", procHandler.Reload)

			// Processes 进程控制
			processRouter := protected.Group("/processes")
			{
				// GET /api/v1/processes - 获取实例列表
				// GET /api/v1/processes - List instances
				processRouter.GET("", procHandler.ListProcesses)

				// GET /api/v1/processes/:name - 获取实例状态
				// GET /api/v1/processes/:name - Get instance status
				processRouter.GET("/:name", procHandler.GetProcess)

				// POST /api/v1/processes/:name/start - 启动实例
				// POST /api/v1/processes/:name/start - Start instance
				processRouter.POST("/:name/start", procHandler.StartProcess)

				// POST /api/v1/processes/:name/stop - 停止实例
				// POST /api/v1/processes/:name/stop - Stop instance
				processRouter.POST("/:name/stop", procHandler.StopProcess)

				// POST /api/v1/processes/:name/restart - 重启实例
				// POST /api/v1/processes/:name/restart - Restart instance
				processRouter.POST("/:name/restart", procHandler.RestartProcess)

				// POST /api/v1/processes/:name/scale - 调整实例数
				// POST /api/v1/processes/:name/scale - Scale process type
				processRouter.POST("/:name/scale", procHandler.Scale)

				// GET /api/v1/processes/:name/logs - 获取实例日志
				// GET /api/v1/processes/:name/logs - Get instance logs
				processRouter.GET("/:name/logs", procHandler.GetLogs)
			}

			// Run history 运行历史 API
			if runRepo != nil {
				runHandler := run.NewHandler(runRepo)

				// GET /api/v1/runs - 获取运行记录列表
				// GET /api/v1/runs - List run records
				protected.GET("/runs", runHandler.ListRuns)

				// GET /api/v1/runs/:run_id - 获取运行记录详情
				// GET /api/v1/runs/:run_id - Get run record details
				protected.GET("/runs/:run_id", runHandler.GetRun)

				// GET /api/v1/events - 获取进程事件列表
				// GET /api/v1/events - List process events
				protected.GET("/events", runHandler.ListEvents)
			}
		}
	}

	return r
}

// Serve runs the control API server until the context is cancelled,
// then shuts it down gracefully.
// Serve 运行控制 API 服务器直至上下文取消，然后优雅关闭。
func Serve(ctx context.Context, cfg *config.Config, log *zap.Logger, engine *gin.Engine) error {
	srv := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("control API listening", zap.String("addr", cfg.API.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loggerMiddleware 记录每个请求的方法、路径、状态码和耗时
// loggerMiddleware logs method, path, status and latency for each request
func loggerMiddleware(log *otelzap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Ctx(c.Request.Context()).Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

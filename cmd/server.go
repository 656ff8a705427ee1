/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/api"
	"github.com/mautops/turk-gin/internal/config"
	"github.com/mautops/turk-gin/internal/container"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server and the sync scheduler",
	Long: `Start the Turk Gin API server.
The server listens on the configured host and port, serves the management
API and the worker task page, and periodically syncs every active batch
with the marketplace.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		cfg, configPath, err := LoadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 2. 初始化容器
		ctr, err := container.NewContainer(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()
		logger := ctr.Logger()

		// 3. 启动后台任务
		go ctr.Hub().Run(ctx)
		ctr.Collector().Start()
		defer ctr.Collector().Stop()

		if cfg.Sync.Enabled {
			ctr.Scheduler().Start(ctx)
			defer ctr.Scheduler().Stop()
		}

		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath, logger)
			watcher.OnConfigChange(func(newCfg *config.Config) {
				ctr.ApplySyncConfig(newCfg.Sync)
			})
			if err := watcher.Start(); err != nil {
				logger.WithError(err).Warn("config hot reload disabled")
			}
			defer watcher.Stop()
		}

		// 4. 设置路由
		router := api.SetupRoutes(ctr.DB(), ctr.Manager(), ctr.Sandbox(), ctr.Hub(), cfg.Server)
		router.NoRoute(func(c *gin.Context) {
			api.Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
		})

		// 5. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("failed to start server: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down server")

		// 优雅关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		logger.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}

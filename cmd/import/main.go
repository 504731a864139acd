package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/config"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/database"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/importer"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/repository"
)

var reportPath string

var rootCmd = &cobra.Command{
	Use:   "import",
	Short: "从 Supabase 导入用户及其旧密码哈希",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			slog.Info("未找到 .env 文件，仅使用环境变量")
		}
	},
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&reportPath, "out", "o", "", "导入报告的输出路径，默认读取 IMPORT_REPORT_PATH")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadImportConfig()
	if err != nil {
		slog.Error("无法读取配置", "error", err)
		return err
	}
	if reportPath != "" {
		cfg.ReportPath = reportPath
	}

	importCfg := importer.Config{
		SourceURL:  cfg.SourceURL,
		AccessKey:  cfg.AccessKey,
		ReportPath: cfg.ReportPath,
		Timeout:    time.Duration(cfg.RequestTimeout) * time.Second,
	}

	dbpool, err := database.Open(cfg.Database)
	if err != nil {
		slog.Error("无法连接到数据库", "error", err)
		return err
	}
	defer dbpool.Close()

	repo := repository.NewRepository(cfg.Database, dbpool)

	im, err := importer.New(importCfg, repo)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := im.Run(ctx)
	if summary != nil {
		slog.Info("导入结束", "fetched", summary.Fetched, "created", summary.Created, "skipped", summary.Skipped, "report", im.ReportPath())
	}
	if err != nil {
		slog.Error("导入失败，已导入的用户不会回滚", "error", err)
		return err
	}

	return nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

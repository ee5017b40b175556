package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/pkg/appctx"
	"github.com/Yat-Muk/prism-clash/internal/pkg/logger"
	"github.com/Yat-Muk/prism-clash/internal/pkg/version"
)

// app 命令之間共享的運行環境，在 PersistentPreRunE 中初始化
type app struct {
	workDir string
	debug   bool

	paths *appctx.Paths
	log   *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "錯誤: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "prism-clash",
		Short:         "Clash 配置合成服務",
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.workDir, "dir", "", "工作目錄 (默認: /etc/prism-clash 或 ~/.prism-clash)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "開啟調試日誌")

	root.AddCommand(
		newServeCmd(a),
		newRenderCmd(a),
		newRuleCmd(a),
		newCertCmd(a),
		newSubCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init() error {
	paths, err := appctx.NewPaths(a.workDir)
	if err != nil {
		return fmt.Errorf("無法初始化路徑: %w", err)
	}

	logConfig := logger.DefaultConfig()
	logConfig.OutputPath = paths.LogFile
	if a.debug {
		logConfig.Level = "debug"
	}
	log, err := logger.New(logConfig)
	if err != nil {
		return fmt.Errorf("日誌初始化失敗: %w", err)
	}

	a.paths = paths
	a.log = log
	return nil
}

// deps 組裝服務，調用方負責 Close
func (a *app) deps() (*AppDependencies, error) {
	return initializeDependencies(a.log, a.paths)
}

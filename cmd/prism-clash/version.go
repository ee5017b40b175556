package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yat-Muk/prism-clash/internal/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "顯示版本信息",
		Args:  cobra.NoArgs,
		// 不需要工作目錄
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			if !check {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			latest, err := version.Latest(ctx, &http.Client{}, version.ReleaseURL)
			if err != nil {
				return err
			}
			switch {
			case latest == "":
				fmt.Fprintln(cmd.OutOrStdout(), "尚無發布版本")
			case latest == version.Version:
				fmt.Fprintln(cmd.OutOrStdout(), "已是最新版本")
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "最新版本: v%s\n", latest)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "查詢最新發布版本")
	return cmd
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/application"
	infraConfig "github.com/Yat-Muk/prism-clash/internal/infra/config"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		output    string
		requester string
		noRefresh bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "合成一次配置並輸出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := a.deps()
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := loadTemplate(deps); err != nil {
				return err
			}
			ctx := cmd.Context()
			if !noRefresh {
				if err := deps.Refresh.Refresh(ctx); err != nil {
					return err
				}
			}

			doc, err := deps.Build.Document(ctx, requester)
			if err != nil {
				return err
			}
			printReport(cmd, doc)

			if output == "" {
				_, err := cmd.OutOrStdout().Write(doc.Body)
				return err
			}
			if err := infraConfig.WriteFileAtomic(output, doc.Body, 0644); err != nil {
				return fmt.Errorf("寫入 %s 失敗: %w", output, err)
			}
			deps.Log.Info("配置已寫入", zap.String("path", output), zap.Int("bytes", len(doc.Body)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "輸出文件，默認寫到標準輸出")
	cmd.Flags().StringVar(&requester, "requester", "", "以指定客戶端的身份合成，用於 invisible_to 過濾")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "不拉取訂閱")
	return cmd
}

// printReport 把合成過程中的修正寫到標準錯誤
func printReport(cmd *cobra.Command, doc *application.Document) {
	w := cmd.ErrOrStderr()
	if r := doc.Report; r != nil {
		for _, d := range r.DroppedRules {
			fmt.Fprintf(w, "丟棄規則 %s: %v\n", d.Rule, d.Err)
		}
		for group, members := range r.PrunedMembers {
			fmt.Fprintf(w, "策略組 %s 移除成員: %s\n", group, strings.Join(members, ", "))
		}
		if len(r.DuplicateProxies) > 0 {
			fmt.Fprintf(w, "重名代理: %s\n", strings.Join(r.DuplicateProxies, ", "))
		}
	}
	for _, c := range doc.Cycles {
		fmt.Fprintf(w, "策略組循環引用: %s\n", strings.Join(c, " -> "))
	}
	if doc.Usage != nil {
		fmt.Fprintf(w, "流量: %s\n", doc.Usage.Header())
	}
}

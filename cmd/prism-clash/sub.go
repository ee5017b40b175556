package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/pkg/sanitizer"
)

func newSubCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sub",
		Short: "管理訂閱",
	}
	cmd.AddCommand(newSubListCmd(a), newSubAddCmd(a), newSubRemoveCmd(a))
	return cmd
}

func newSubListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出訂閱（鏈接已脫敏）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := a.deps()
			if err != nil {
				return err
			}
			defer deps.Close()

			cfg, err := deps.ConfigSvc.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			renderTable(cmd.OutOrStdout(), []string{"NAME", "ENABLED", "URL", "INCLUDE"}, subRows(cfg.Subscriptions))
			return nil
		},
	}
}

func newSubAddCmd(a *app) *cobra.Command {
	var (
		userAgent string
		disabled  bool
		exclude   []string
	)
	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "添加或替換訂閱",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			include, err := includeFlags(exclude)
			if err != nil {
				return err
			}

			deps, err := a.deps()
			if err != nil {
				return err
			}
			defer deps.Close()

			sub := config.SubscriptionConfig{
				Name:      args[0],
				URL:       args[1],
				Enabled:   !disabled,
				UserAgent: userAgent,
				Include:   include,
			}
			if err := deps.ConfigSvc.SetSubscription(cmd.Context(), sub); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已保存訂閱 %s\n", sub.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&userAgent, "ua", "", "拉取時使用的 User-Agent")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "保存但不啟用")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil,
		"不合併的部分: proxies,proxy_groups,rules,rule_providers,proxy_providers,info")
	return cmd
}

func newSubRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "刪除訂閱",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.deps()
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.ConfigSvc.RemoveSubscription(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已刪除訂閱 %s\n", args[0])
			return nil
		},
	}
}

// includeFlags 由排除列表得到合併開關
func includeFlags(exclude []string) (config.IncludeFlags, error) {
	inc := config.AllIncluded()
	for _, part := range exclude {
		switch strings.TrimSpace(part) {
		case "proxies":
			inc.Proxies = false
		case "proxy_groups":
			inc.ProxyGroups = false
		case "rules":
			inc.Rules = false
		case "rule_providers":
			inc.RuleProviders = false
		case "proxy_providers":
			inc.ProxyProviders = false
		case "info":
			inc.Info = false
		default:
			return inc, fmt.Errorf("未知的合併部分 %q", part)
		}
	}
	return inc, nil
}

func subRows(subs []config.SubscriptionConfig) [][]string {
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		var parts []string
		for _, p := range []struct {
			name string
			on   bool
		}{
			{"proxies", s.Include.Proxies},
			{"groups", s.Include.ProxyGroups},
			{"rules", s.Include.Rules},
			{"providers", s.Include.RuleProviders},
			{"proxy-providers", s.Include.ProxyProviders},
			{"info", s.Include.Info},
		} {
			if p.on {
				parts = append(parts, p.name)
			}
		}
		enabled := "yes"
		if !s.Enabled {
			enabled = "no"
		}
		rows = append(rows, []string{s.Name, enabled, sanitizer.URL(s.URL), strings.Join(parts, ",")})
	}
	return rows
}

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/spf13/cobra"

	"github.com/Yat-Muk/prism-clash/internal/application"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	"github.com/Yat-Muk/prism-clash/internal/domain/rulelist"
)

func newRuleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "規則工具",
	}
	cmd.AddCommand(newRuleParseCmd(), newRuleListCmd(a), newRuleImportCmd(a))
	return cmd
}

func newRuleParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <rule>...",
		Short: "解析規則並輸出規範形式",
		Args:  cobra.MinimumNArgs(1),
		// 純計算，不需要工作目錄
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(args))
			failed := 0
			for _, line := range args {
				r, err := parseAndValidate(line)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", line, err)
					continue
				}
				rows = append(rows, []string{string(r.Type()), r.Expression(), string(r.Target()), r.String()})
			}
			if len(rows) > 0 {
				renderTable(cmd.OutOrStdout(), []string{"TYPE", "CONDITION", "ACTION", "CANONICAL"}, rows)
			}
			if failed > 0 {
				return fmt.Errorf("%d 條規則無效", failed)
			}
			return nil
		},
	}
}

func parseAndValidate(line string) (rule.Rule, error) {
	r, err := rule.ParseLine(line)
	if err != nil {
		return nil, err
	}
	if err := rule.Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

func newRuleListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [rules|ruleset]",
		Short: "列出本地註冊表中的規則",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := ruleSetArg(args)
			if err != nil {
				return err
			}
			deps, err := a.deps()
			if err != nil {
				return err
			}
			defer deps.Close()

			entries, err := deps.Rules.List(cmd.Context(), set)
			if err != nil {
				return err
			}
			renderTable(cmd.OutOrStdout(), []string{"#", "TYPE", "PAYLOAD", "ACTION", "SOURCE", "FLAGS"}, ruleRows(entries))
			return nil
		},
	}
}

func ruleSetArg(args []string) (application.RuleSet, error) {
	if len(args) == 0 {
		return application.RuleSetTop, nil
	}
	return application.ParseRuleSet(args[0])
}

func ruleRows(entries []rulelist.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		payload := e.Payload
		switch {
		case len(e.Conditions) > 0:
			payload = strings.Join(e.Conditions, " ")
		case e.Condition != "":
			payload = e.Condition
		}
		if e.AdditionalParams != "" {
			payload += " [" + e.AdditionalParams + "]"
		}

		var flags []string
		if e.Metadata.Disabled {
			flags = append(flags, "disabled")
		}
		if len(e.Metadata.InvisibleTo) > 0 {
			flags = append(flags, "hidden:"+strings.Join(e.Metadata.InvisibleTo, ","))
		}
		rows = append(rows, []string{
			strconv.Itoa(e.Priority), e.Type, payload, e.Action, string(e.Metadata.Source), strings.Join(flags, " "),
		})
	}
	return rows
}

func newRuleImportCmd(a *app) *cobra.Command {
	var setName string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "從 JSONC 文件批量導入規則字典",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := application.ParseRuleSet(setName)
			if err != nil {
				return err
			}
			dicts, err := readRuleDicts(args[0])
			if err != nil {
				return err
			}

			deps, err := a.deps()
			if err != nil {
				return err
			}
			defer deps.Close()

			res, err := deps.Rules.Import(cmd.Context(), set, dicts)
			if err != nil {
				return err
			}
			for _, e := range res.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "跳過: %v\n", e)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "新增 %d 條，重複 %d 條，跳過 %d 條\n", res.Added, res.Duplicates, len(res.Skipped))
			return nil
		},
	}
	cmd.Flags().StringVar(&setName, "set", string(application.RuleSetTop), "目標集合 (rules|ruleset)")
	return cmd
}

// readRuleDicts 讀取允許註釋和尾逗號的 JSON 規則列表
func readRuleDicts(path string) ([]rule.Dict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("讀取 %s 失敗: %w", path, err)
	}
	var dicts []rule.Dict
	if err := jsonc.Unmarshal(data, &dicts); err != nil {
		return nil, fmt.Errorf("解析 %s 失敗: %w", path, err)
	}
	return dicts, nil
}

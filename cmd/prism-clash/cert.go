package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yat-Muk/prism-clash/internal/infra/certinfo"
)

func newCertCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cert",
		Short: "查看 API HTTPS 證書狀態",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := a.deps()
			if err != nil {
				return err
			}
			defer deps.Close()

			sc := deps.Config.Get().Server
			out := cmd.OutOrStdout()
			if !sc.TLS.Enabled {
				fmt.Fprintln(out, "HTTPS 未啟用")
				return nil
			}

			info := certinfo.Inspect(sc.TLS.CertFile, time.Now())
			renderTable(out, []string{"FIELD", "VALUE"}, certRows(info))

			if u, err := url.Parse(sc.BaseURL); err == nil && u.Hostname() != "" &&
				info.Status != certinfo.StatusMissing && info.Status != certinfo.StatusError &&
				!info.Covers(u.Hostname()) {
				fmt.Fprintf(cmd.ErrOrStderr(), "警告: 證書不包含 base_url 主機 %s\n", u.Hostname())
			}
			return nil
		},
	}
}

func certRows(info certinfo.Info) [][]string {
	rows := [][]string{
		{"path", info.Path},
		{"status", info.Summary()},
	}
	if info.Status == certinfo.StatusMissing || info.Status == certinfo.StatusError {
		return rows
	}
	return append(rows,
		[]string{"subject", info.Subject},
		[]string{"hosts", strings.Join(info.Hosts, ", ")},
		[]string{"issuer", info.Issuer},
		[]string{"self_signed", strconv.FormatBool(info.SelfSigned)},
	)
}

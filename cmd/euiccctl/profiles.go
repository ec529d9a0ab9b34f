package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"euicc-profile-service/internal/domain"
)

// profilesCmd はプロファイル管理のコマンド。
func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage eUICC profiles",
	}
	cmd.AddCommand(profilesListCmd())
	cmd.AddCommand(profilesGetCmd())
	cmd.AddCommand(profileActionCmd("enable", "Enable a profile", "enable"))
	cmd.AddCommand(profileActionCmd("disable", "Disable a profile", "disable"))
	cmd.AddCommand(profilesDeleteCmd())
	return cmd
}

func profilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := request(cmd.Context(), http.MethodGet, "/api/profiles", nil, "", http.StatusOK)
			if err != nil {
				return err
			}
			var profiles []domain.Profile
			return render(cmd, raw, &profiles, func(w io.Writer) error {
				return printProfiles(w, profiles)
			})
		},
	}
}

func profilesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <profile-id>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := request(cmd.Context(), http.MethodGet, "/api/profiles/"+url.PathEscape(args[0]), nil, "", http.StatusOK)
			if err != nil {
				return err
			}
			var p domain.Profile
			return render(cmd, raw, &p, func(w io.Writer) error {
				return printProfile(w, &p)
			})
		},
	}
}

// profileActionCmd はenable/disableのコマンドを生成する。
func profileActionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <profile-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/profiles/%s/%s", url.PathEscape(args[0]), action)
			raw, err := request(cmd.Context(), http.MethodPost, path, nil, "", http.StatusOK)
			if err != nil {
				return err
			}
			var p domain.Profile
			return render(cmd, raw, &p, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Profile %s (%s) is now %s\n", p.ID, p.ICCID, p.Status)
				return err
			})
		},
	}
}

func profilesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <profile-id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := request(cmd.Context(), http.MethodDelete, "/api/profiles/"+url.PathEscape(args[0]), nil, "", http.StatusOK)
			if err != nil {
				return err
			}
			var resp struct {
				Message string `json:"message"`
			}
			return render(cmd, raw, &resp, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted profile %s\n", args[0])
				return err
			})
		},
	}
}

// statsCmd はダッシュボードの集計値を表示する。
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show profile and certificate counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := request(cmd.Context(), http.MethodGet, "/api/stats", nil, "", http.StatusOK)
			if err != nil {
				return err
			}
			var stats domain.Stats
			return render(cmd, raw, &stats, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
				fmt.Fprintf(tw, "Total profiles:\t%d\n", stats.TotalProfiles)
				fmt.Fprintf(tw, "Enabled:\t%d\n", stats.EnabledProfiles)
				fmt.Fprintf(tw, "Disabled:\t%d\n", stats.DisabledProfiles)
				fmt.Fprintf(tw, "Certificates:\t%d\n", stats.TotalCertificates)
				return tw.Flush()
			})
		},
	}
}

func printProfiles(w io.Writer, profiles []domain.Profile) error {
	if len(profiles) == 0 {
		_, err := fmt.Fprintln(w, "No profiles.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tICCID\tSTATUS\tSTANDARD")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.ICCID, p.Status, p.Standard)
	}
	return tw.Flush()
}

func printProfile(w io.Writer, p *domain.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", p.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", p.Name)
	fmt.Fprintf(tw, "ICCID:\t%s\n", p.ICCID)
	fmt.Fprintf(tw, "IMSI:\t%s\n", orDash(p.IMSI))
	fmt.Fprintf(tw, "Ki:\t%s\n", maskKey(p.Ki))
	fmt.Fprintf(tw, "OPC:\t%s\n", maskKey(p.OPC))
	fmt.Fprintf(tw, "Status:\t%s\n", p.Status)
	fmt.Fprintf(tw, "Standard:\t%s\n", p.Standard)
	fmt.Fprintf(tw, "Created:\t%s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
	return tw.Flush()
}

// maskKey は鍵の先頭4文字以外を伏せる。json/yaml出力では伏せない。
func maskKey(k string) string {
	if k == "" {
		return "-"
	}
	if len(k) <= 4 {
		return "****"
	}
	return k[:4] + "****"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

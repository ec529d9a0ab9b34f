package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"euicc-profile-service/internal/domain"
	"euicc-profile-service/internal/ingest"
)

type scanResponse struct {
	ProfilesFound int                   `json:"profiles_found"`
	Profiles      []domain.ProfileDraft `json:"profiles"`
}

// scanCmd は貼り付けテキストのプレビューを行う。--localの場合はサーバーを使わない。
func scanCmd() *cobra.Command {
	var file string
	var local bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Preview profiles found in free-form text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			if local {
				drafts := ingest.ScanText(string(text))
				resp := scanResponse{ProfilesFound: len(drafts), Profiles: drafts}
				return renderValue(cmd, resp, func(w io.Writer) error {
					return printDrafts(w, resp.Profiles)
				})
			}

			raw, err := postJSON(cmd.Context(), "/api/profiles/scan", map[string]string{"text": string(text)}, http.StatusOK)
			if err != nil {
				return err
			}
			var resp scanResponse
			return render(cmd, raw, &resp, func(w io.Writer) error {
				return printDrafts(w, resp.Profiles)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Text file to scan, or - for stdin (required)")
	cmd.Flags().BoolVar(&local, "local", false, "Scan locally without calling the API")
	cmd.MarkFlagRequired("file")
	return cmd
}

// importCmd はプロファイルの一括取り込みコマンド。
func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import profiles",
	}
	cmd.AddCommand(importTextCmd())
	cmd.AddCommand(importJSONCmd())
	cmd.AddCommand(importCSVCmd())
	return cmd
}

func importTextCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "text",
		Short: "Scan a text file on the server and import the drafts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			raw, err := postJSON(cmd.Context(), "/api/profiles/scan", map[string]string{"text": string(text)}, http.StatusOK)
			if err != nil {
				return err
			}
			var scanned scanResponse
			if err := json.Unmarshal(raw, &scanned); err != nil {
				return fmt.Errorf("parsing scan response: %w", err)
			}
			if scanned.ProfilesFound == 0 {
				return fmt.Errorf("no profiles found in %s", file)
			}

			raw, err = postJSON(cmd.Context(), "/api/profiles/import/text", map[string]interface{}{"profiles": scanned.Profiles}, http.StatusOK)
			if err != nil {
				return err
			}
			return renderImportResult(cmd, raw)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Text file, or - for stdin (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func importJSONCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "json",
		Short: `Import a {"profiles": [...]} JSON document`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			raw, err := request(cmd.Context(), http.MethodPost, "/api/profiles/import/json", bytes.NewReader(data), "application/json", http.StatusOK)
			if err != nil {
				return err
			}
			return renderImportResult(cmd, raw)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON file, or - for stdin (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func importCSVCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Import a CSV file with a header row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			name := filepath.Base(file)
			if file == "-" {
				name = "stdin.csv"
			}
			fw, err := mw.CreateFormFile("file", name)
			if err != nil {
				return fmt.Errorf("creating multipart body: %w", err)
			}
			if _, err := fw.Write(data); err != nil {
				return fmt.Errorf("creating multipart body: %w", err)
			}
			if err := mw.Close(); err != nil {
				return fmt.Errorf("creating multipart body: %w", err)
			}

			raw, err := request(cmd.Context(), http.MethodPost, "/api/profiles/import/csv", &body, mw.FormDataContentType(), http.StatusOK)
			if err != nil {
				return err
			}
			return renderImportResult(cmd, raw)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file, or - for stdin (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func renderImportResult(cmd *cobra.Command, raw []byte) error {
	var result domain.ImportResult
	return render(cmd, raw, &result, func(w io.Writer) error {
		fmt.Fprintf(w, "Imported: %d, skipped: %d, failed: %d\n", result.ImportedCount, result.SkippedCount, result.FailedCount)
		for _, s := range result.Skipped {
			line := fmt.Sprintf("  skipped %s (%s)", orDash(s.ICCID), s.Reason)
			if len(s.Errors) > 0 {
				msgs := make([]string, len(s.Errors))
				for i, e := range s.Errors {
					msgs[i] = e.Message
				}
				line += ": " + strings.Join(msgs, "; ")
			}
			fmt.Fprintln(w, line)
		}
		for _, f := range result.Failed {
			fmt.Fprintf(w, "  failed %s: %s\n", f.ICCID, f.Error)
		}
		return nil
	})
}

func printDrafts(w io.Writer, drafts []domain.ProfileDraft) error {
	fmt.Fprintf(w, "Profiles found: %d\n", len(drafts))
	if len(drafts) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ICCID\tNAME\tIMSI\tKI\tSTANDARD\tERRORS")
	for _, d := range drafts {
		errs := "-"
		if !d.Valid() {
			msgs := make([]string, len(d.ValidationErrors))
			for i, e := range d.ValidationErrors {
				msgs[i] = e.Message
			}
			errs = strings.Join(msgs, "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.ICCID, orDash(d.Name), orDash(d.IMSI), maskKey(d.Ki), orDash(d.Standard), errs)
	}
	return tw.Flush()
}

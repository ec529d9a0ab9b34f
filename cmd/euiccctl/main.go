// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const version = "1.0.0"

// 出力形式。
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "euiccctl",
		Short:        "eUICC Profile Service CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				apiURL = os.Getenv("EUICCCTL_API_URL")
			}
			apiURL = strings.TrimRight(apiURL, "/")
			switch output {
			case outputText, outputJSON, outputYAML:
			default:
				return fmt.Errorf("unsupported output format %q (text, json, yaml)", output)
			}
			httpClient = &http.Client{Timeout: timeout}
			return nil
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set EUICCCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", outputText, "Output format: text, json, yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(profilesCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(certCmd())
	rootCmd.AddCommand(migrateCmd())

	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "euiccctl version %s\n", version)
		},
	}
}

// request はAPIを呼び出し、wantStatus以外のステータスをエラーとして返す。
func request(ctx context.Context, method, path string, body io.Reader, contentType string, wantStatus int) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set EUICCCTL_API_URL)")
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, data)
	}
	return data, nil
}

// postJSON はvをJSONにしてPOSTする。
func postJSON(ctx context.Context, path string, v interface{}, wantStatus int) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return request(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json", wantStatus)
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		msg := fmt.Sprintf("%s (%s)", errResp.Message, errResp.Code)
		for _, d := range errResp.Details {
			msg += fmt.Sprintf("\n  %s: %s", d.Field, d.Message)
		}
		return errors.New(msg)
	}
	return fmt.Errorf("server returned status %d", statusCode)
}

// render はレスポンスを--outputの形式で出力する。
// textの場合はrawをvにデコードしてからtextで整形する。
func render(cmd *cobra.Command, raw []byte, v interface{}, text func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	switch output {
	case outputJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return fmt.Errorf("formatting response: %w", err)
		}
		fmt.Fprintln(w, buf.String())
		return nil
	case outputYAML:
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		return text(w)
	}
}

// renderValue はローカルで生成した値を出力する。
func renderValue(cmd *cobra.Command, v interface{}, text func(w io.Writer) error) error {
	if output == outputText {
		return text(cmd.OutOrStdout())
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return render(cmd, raw, nil, text)
}

// readInput はファイルを読み込む。"-" は標準入力。
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

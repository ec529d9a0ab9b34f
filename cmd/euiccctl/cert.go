package main

import (
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"euicc-profile-service/internal/certparse"
	"euicc-profile-service/internal/domain"
)

// certCmd は証明書関連のコマンド。
func certCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Inspect certificate issuer certificates",
	}
	cmd.AddCommand(certParseCmd())
	cmd.AddCommand(certInspectCmd())
	return cmd
}

// certParseCmd はサーバーで証明書を解析する。
func certParseCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a PEM certificate through the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			raw, err := postJSON(cmd.Context(), "/api/certificates/parse", map[string]string{"pem_data": string(data)}, http.StatusOK)
			if err != nil {
				return err
			}
			var info domain.CertificateInfo
			return render(cmd, raw, &info, func(w io.Writer) error {
				return printCertificateInfo(w, &info)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "PEM file, or - for stdin (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

// certInspectCmd はサーバーを使わずに証明書を解析する。
func certInspectCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Decode a PEM certificate locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			info, err := certparse.Decode(string(data))
			if err != nil {
				return err
			}
			return renderValue(cmd, info, func(w io.Writer) error {
				return printCertificateInfo(w, info)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "PEM file, or - for stdin (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func printCertificateInfo(w io.Writer, info *domain.CertificateInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%d\n", info.Version)
	fmt.Fprintf(tw, "Serial:\t%s\n", info.SerialNumber)
	fmt.Fprintf(tw, "Issuer:\t%s\n", info.Issuer)
	fmt.Fprintf(tw, "Subject:\t%s\n", info.Subject)
	fmt.Fprintf(tw, "Not before:\t%s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(tw, "Not after:\t%s\n", info.NotAfter.Format(time.RFC3339))
	fmt.Fprintf(tw, "Signature:\t%s\n", info.SignatureAlgorithm)
	fmt.Fprintf(tw, "Public key:\t%s\n", info.PublicKeyAlgorithm)
	fmt.Fprintf(tw, "Key ID:\t%s\n", orDash(info.KeyID))
	fmt.Fprintf(tw, "Authority key ID:\t%s\n", orDash(info.AuthorityKeyID))
	fmt.Fprintf(tw, "CRL:\t%s\n", orDash(info.CRLURL))
	fmt.Fprintf(tw, "SHA-256:\t%s\n", info.FingerprintSHA256)
	return tw.Flush()
}

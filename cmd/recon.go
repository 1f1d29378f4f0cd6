package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/owaspray/cmd/internal/display"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/owa"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/results"
)

var reconCmd = &cobra.Command{
	Use:   "recon <domain|url>",
	Short: "Find the autodiscover endpoint, tenancy and internal domain",
	Long: `Runs recon only: probes the autodiscover candidates, asks the Microsoft
identity platform whether the domain is an Office 365 tenant, and decodes the
NTLM challenge for the internal domain name. Nothing is authenticated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := owa.ParseTarget(args[0])
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format != "yaml" && format != "json" && format != "text" {
			return fmt.Errorf("unsupported format %q (yaml, json, text)", format)
		}

		sprayer, err := openSprayer(cmd.Context(), target, results.NewMemorySink(), log.WithTarget(target.String()))
		if err != nil {
			return err
		}

		recon, err := sprayer.Recon(cmd.Context())
		if err != nil {
			return err
		}

		return writeRecon(cmd.OutOrStdout(), recon, format)
	},
}

func writeRecon(w io.Writer, recon *owa.ReconResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recon)
	case "text":
		display.PrintRecon(w, recon)
		return nil
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(recon); err != nil {
			return err
		}
		return enc.Close()
	}
}

func init() {
	rootCmd.AddCommand(reconCmd)
	reconCmd.Flags().String("format", "yaml", "output format (yaml, json, text)")
}

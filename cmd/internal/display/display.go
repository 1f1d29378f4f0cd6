// Package display formats owaspray CLI output.
package display

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/owa"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/spray"
)

// ColorOutcome returns a colorized, prefixed outcome label.
func ColorOutcome(outcome owa.Outcome) string {
	switch outcome {
	case owa.Valid:
		return color.New(color.FgGreen).Sprint("[+] valid")
	case owa.ValidBlocked:
		return color.New(color.FgYellow).Sprint("[+] valid (check manually)")
	case owa.TransportError:
		return color.New(color.FgRed).Sprint("[-] error")
	default:
		return "[-] invalid"
	}
}

// ColorTenancy highlights where authentication is hosted.
func ColorTenancy(tenancy owa.Tenancy, cloud bool) string {
	switch {
	case cloud:
		return color.New(color.FgCyan).Sprint("Office 365 (basic auth)")
	case tenancy == owa.TenancyOnPrem:
		return color.New(color.FgGreen).Sprint("on-premises (NTLM)")
	default:
		return color.New(color.FgYellow).Sprint("unknown, assuming on-premises (NTLM)")
	}
}

// PrintRecon writes a short human summary of recon.
func PrintRecon(w io.Writer, r *owa.ReconResult) {
	fmt.Fprintf(w, "%s %s\n", color.CyanString("[*] Endpoint:"), r.Endpoint)
	fmt.Fprintf(w, "%s %s\n", color.CyanString("[*] Tenancy: "), ColorTenancy(r.Tenancy, r.Cloud))
	if r.InternalDomain != "" {
		fmt.Fprintf(w, "%s %s\n", color.GreenString("[+] Internal domain:"), r.InternalDomain)
	}
}

// PrintSummary writes the end-of-run counts and every credential found.
func PrintSummary(w io.Writer, sum spray.Summary, found []owa.CredentialResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Attempts: %d  Valid: %s  Blocked: %s  Invalid: %d  Errors: %d  Skipped: %d  (%s)\n",
		sum.Attempts,
		color.GreenString("%d", sum.Valid),
		color.YellowString("%d", sum.ValidBlocked),
		sum.Invalid,
		sum.TransportErrors,
		sum.Skipped,
		sum.Duration.Round(1e6),
	)
	if sum.Stopped {
		fmt.Fprintln(w, color.YellowString("Stopped after first valid credential"))
	}
	for _, r := range found {
		fmt.Fprintf(w, "  %s %s\n", ColorOutcome(r.Outcome), r.String())
	}
}

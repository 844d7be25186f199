package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"ecoquote/internal/client"

	"github.com/spf13/cobra"
)

var (
	respondYes bool
	pdfOutput  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <token-or-link>",
	Short: "Show what a response link will do",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var respondCmd = &cobra.Command{
	Use:   "respond <token-or-link>",
	Short: "Approve or reject a quotation through its response link",
	Args:  cobra.ExactArgs(1),
	RunE:  runRespond,
}

var pdfCmd = &cobra.Command{
	Use:   "pdf <id>",
	Short: "Download a quotation as PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runPDF,
}

func init() {
	respondCmd.Flags().BoolVarP(&respondYes, "yes", "y", false, "Confirm the decision without asking")
	pdfCmd.Flags().StringVarP(&pdfOutput, "output", "o", "", "Output file (default quotation-<id>.pdf)")
}

// responseToken accepts a bare token or the emailed link
func responseToken(arg string) string {
	if u, err := url.Parse(arg); err == nil && u.Scheme != "" {
		if t := u.Query().Get("token"); t != "" {
			return t
		}
	}
	return strings.TrimSpace(arg)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	v, err := anonymousClient().VerifyToken(ctx, responseToken(args[0]))
	if err != nil {
		return explainResponseError(err)
	}
	if jsonOutput {
		return printJSON(v)
	}
	fmt.Printf("This link will %s the quotation below.\n\n", v.Action)
	printQuotation(v.Quotation)
	return nil
}

func runRespond(cmd *cobra.Command, args []string) error {
	token := responseToken(args[0])
	ctx, cancel := commandContext(cmd)
	defer cancel()

	c := anonymousClient()
	v, err := c.VerifyToken(ctx, token)
	if err != nil {
		return explainResponseError(err)
	}

	if !respondYes {
		printQuotation(v.Quotation)
		fmt.Printf("\n%s this quotation? [y/N] ", strings.ToUpper(string(v.Action[:1]))+string(v.Action[1:]))
		var answer string
		fmt.Fscanln(os.Stdin, &answer)
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Nothing submitted")
			return nil
		}
	}

	status, err := c.SubmitResponse(ctx, token)
	if err != nil {
		return explainResponseError(err)
	}
	fmt.Printf("Quotation %s is now %s\n", v.QuotationID, status)
	return nil
}

func runPDF(cmd *cobra.Command, args []string) error {
	c, _, err := staffClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	data, err := c.DownloadPDF(ctx, args[0])
	if err != nil {
		return err
	}
	out := pdfOutput
	if out == "" {
		out = "quotation-" + args[0] + ".pdf"
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", out, len(data))
	return nil
}

// explainResponseError turns the response-link error codes into plain messages
func explainResponseError(err error) error {
	var upstream *client.UpstreamError
	if !errors.As(err, &upstream) {
		return err
	}
	switch upstream.Code {
	case "already_resolved":
		return fmt.Errorf("this quotation was already %s", upstream.Status)
	case "expired":
		return errors.New("this link has expired, ask for a new one")
	case "not_found":
		return errors.New("this link is not valid")
	}
	return err
}

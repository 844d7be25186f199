package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"ecoquote/internal/model"

	"github.com/spf13/cobra"
)

var (
	listStatus string
	listLimit  int
	listOffset int
)

var quotationsCmd = &cobra.Command{
	Use:     "quotations",
	Aliases: []string{"q"},
	Short:   "Browse and send quotations",
}

var quotationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quotations",
	RunE:  runQuotationsList,
}

var quotationsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one quotation",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuotationsGet,
}

var quotationsSendCmd = &cobra.Command{
	Use:   "send <id>",
	Short: "Email the response links to the client",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuotationsSend,
}

func init() {
	quotationsListCmd.Flags().StringVar(&listStatus, "status", "", "pending, sent, approved or rejected")
	quotationsListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum rows")
	quotationsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Rows to skip")
}

func runQuotationsList(cmd *cobra.Command, args []string) error {
	c, _, err := staffClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	quotations, err := c.ListQuotations(ctx, listStatus, listLimit, listOffset)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(quotations)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCLIENT\tSERVICE\tPERMITS\tAMOUNT")
	for _, q := range quotations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", q.ID, q.Status, clientName(q), q.ServiceType.Label(), len(q.PermitRequests), amount(q.Amount))
	}
	return w.Flush()
}

func runQuotationsGet(cmd *cobra.Command, args []string) error {
	c, _, err := staffClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	q, err := c.GetQuotation(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(q)
	}
	printQuotation(q)
	return nil
}

func runQuotationsSend(cmd *cobra.Command, args []string) error {
	c, _, err := staffClient()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	result, err := c.SendQuotation(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}
	fmt.Printf("Sent %s to %s\n", result.Quotation.ID, result.Quotation.Email)
	fmt.Printf("  approve: %s\n", result.ApproveURL)
	fmt.Printf("  reject:  %s\n", result.RejectURL)
	fmt.Printf("  links expire %s\n", result.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func printQuotation(q *model.Quotation) {
	fmt.Printf("Quotation %s (%s)\n", q.ID, q.Status)
	fmt.Printf("  Client:  %s <%s>\n", clientName(*q), q.Email)
	fmt.Printf("  Service: %s\n", q.ServiceType.Label())
	if q.Description != "" {
		fmt.Printf("  Request: %s\n", q.Description)
	}
	fmt.Printf("  Amount:  %s\n", amount(q.Amount))
	for _, pr := range q.PermitRequests {
		if pr.PermitType != nil {
			fmt.Printf("  - %s (%s, $%.2f)\n", pr.DisplayName(), pr.PermitType.AgencyName, pr.PermitType.Price)
		} else {
			fmt.Printf("  - %s (custom)\n", pr.DisplayName())
		}
	}
}

func clientName(q model.Quotation) string {
	if q.Company != "" {
		return q.Name + ", " + q.Company
	}
	return q.Name
}

func amount(a *float64) string {
	if a == nil {
		return "-"
	}
	return fmt.Sprintf("$%.2f", *a)
}

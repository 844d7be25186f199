package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"ecoquote/internal/client"

	"github.com/spf13/cobra"
)

var (
	apiURL      string
	sessionPath string
	timeout     time.Duration
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:           "ecoquotectl",
	Short:         "Command-line portal for quotations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultAPI := os.Getenv("ECOQUOTE_API_URL")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8081/api"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPI, "Gateway API base URL (or ECOQUOTE_API_URL)")
	rootCmd.PersistentFlags().StringVar(&sessionPath, "session", client.DefaultSessionPath(), "Session file (or "+client.SessionEnv+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	quotationsCmd.AddCommand(quotationsListCmd, quotationsGetCmd, quotationsSendCmd)
	rootCmd.AddCommand(quotationsCmd)
	rootCmd.AddCommand(verifyCmd, respondCmd, pdfCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var upstream *client.UpstreamError
		if errors.As(err, &upstream) {
			fmt.Fprintf(os.Stderr, "error: %s (HTTP %d)\n", upstream.Message, upstream.StatusCode)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// anonymousClient serves the public response-link endpoints
func anonymousClient() *client.Client {
	return client.New(apiURL, "")
}

// staffClient requires a live session
func staffClient() (*client.Client, *client.Session, error) {
	session, err := client.LoadSession(sessionPath)
	if err != nil {
		return nil, nil, err
	}
	if !session.Valid(time.Now()) {
		return nil, nil, errors.New("not logged in, run: ecoquotectl login")
	}
	return client.New(apiURL, session.Token), session, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

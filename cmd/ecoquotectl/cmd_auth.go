package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"ecoquote/internal/client"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in as staff and store the session",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := client.LoadSession(sessionPath)
		if err != nil {
			return err
		}
		if err := session.Clear(); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in staff member",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Staff email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (or ECOQUOTE_PASSWORD)")
	loginCmd.MarkFlagRequired("email")
}

func runLogin(cmd *cobra.Command, args []string) error {
	password := loginPassword
	if password == "" {
		password = os.Getenv("ECOQUOTE_PASSWORD")
	}
	if password == "" {
		return errors.New("password required: use --password or ECOQUOTE_PASSWORD")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	result, err := anonymousClient().Login(ctx, loginEmail, password)
	if err != nil {
		return err
	}

	session, err := client.LoadSession(sessionPath)
	if err != nil {
		return err
	}
	session.Start(result.Token, result.User, result.ExpiresAt)
	if err := session.Save(); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s (%s), session valid until %s\n",
		result.User.Email, result.User.Role, result.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	c, session, err := staffClient()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	me, err := c.Me(ctx)
	if err != nil {
		// The server is the authority on the token
		var upstream *client.UpstreamError
		if errors.As(err, &upstream) && upstream.StatusCode == http.StatusUnauthorized {
			session.Clear()
		}
		return err
	}
	if jsonOutput {
		return printJSON(me)
	}
	fmt.Printf("%s <%s> %s\n", me.Name, me.Email, me.Role)
	return nil
}

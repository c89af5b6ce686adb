/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/inkwell-blog/apiserver/internal/client"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var serverURL string

func newAPIClient() (*client.Client, error) {
	path, err := client.DefaultSessionPath()
	if err != nil {
		return nil, err
	}
	session, err := client.NewSessionManager(path)
	if err != nil {
		return nil, err
	}
	return client.New(serverURL, session), nil
}

func promptLine(label string) (string, error) {
	fmt.Printf("%s: ", label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to an inkwell server and store the session locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}

		email, err := promptLine("Email")
		if err != nil {
			return err
		}
		password, err := promptPassword("Password")
		if err != nil {
			return err
		}

		user, err := api.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (@%s)\n", user.Name, user.Username)
		return nil
	},
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the locally stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := api.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

// whoamiCmd prints the locally cached identity without contacting the
// server.
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the locally cached identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		user, _, ok := api.Session().Current()
		if !ok {
			fmt.Println("Not logged in")
			return nil
		}
		fmt.Printf("%s (@%s) <%s> role=%s\n", user.Name, user.Username, user.Email, user.Role)
		return nil
	},
}

// meCmd fetches the identity from the server, exercising the stored
// token. An expired or invalidated session is cleared automatically.
var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Fetch the current identity from the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		user, err := api.Me(cmd.Context())
		if err != nil {
			if errors.Is(err, client.ErrSessionExpired) || errors.Is(err, client.ErrNotAuthenticated) {
				fmt.Println("Not logged in")
				return nil
			}
			return err
		}
		fmt.Printf("%s (@%s) <%s> role=%s\n", user.Name, user.Username, user.Email, user.Role)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, logoutCmd, whoamiCmd, meCmd} {
		cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the inkwell server")
		rootCmd.AddCommand(cmd)
	}
}

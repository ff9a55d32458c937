package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facechain/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the backend and print a FACE_TOKEN",
	Long: `Exchange email and password for a bearer token. The token is printed as an
export line; put it in .env or the environment of later commands.

Examples:
  facechain login --email me@example.com
  eval "$(facechain login --email me@example.com --password "$PW" --quiet)"`,
	RunE: runLogin,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the account FACE_TOKEN belongs to",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := requireToken(cfg); err != nil {
			return err
		}
		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		user, err := client.CurrentUser(context.Background())
		if err != nil {
			return err //nolint:wrapcheck // already descriptive
		}
		fmt.Printf("ID:       %s\n", user.ID)
		if user.Username != "" {
			fmt.Printf("Username: %s\n", user.Username)
		}
		if user.Email != "" {
			fmt.Printf("Email:    %s\n", user.Email)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, whoamiCmd)

	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().String("password", "", "Account password (prompted when empty)")
	loginCmd.Flags().Bool("quiet", false, "Print only the export line")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	cfg.Backend.Token = ""

	email := strings.TrimSpace(mustGetString(cmd, "email"))
	password := mustGetString(cmd, "password")
	quiet := mustGetBool(cmd, "quiet")

	reader := bufio.NewReader(os.Stdin)
	if email == "" {
		fmt.Fprint(os.Stderr, "Email: ")
		line, _ := reader.ReadString('\n')
		email = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, _ := reader.ReadString('\n')
		password = strings.TrimRight(line, "\r\n")
	}
	if email == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	user, err := client.Login(context.Background(), email, password)
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	token, err := client.Session().Bearer()
	if err != nil {
		return err //nolint:wrapcheck // login always stores a token
	}

	if !quiet {
		fmt.Fprintf(os.Stderr, "Logged in as user %s\n", user.ID)
	}
	fmt.Printf("export FACE_TOKEN=%s\n", token)
	return nil
}

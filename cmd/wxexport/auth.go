package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"wxexport/pkg/auth"
	"wxexport/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage mp.weixin.qq.com credentials",
	Long: `Manage stored mp.weixin.qq.com sessions.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (WXEXPORT_COOKIE, WXEXPORT_TOKEN)

wxexport never logs in by itself; copy the cookie and token from a browser
session (see 'wxexport auth guide').`,
}

// setCmd represents the auth set command
var setCmd = &cobra.Command{
	Use:   "set [profile]",
	Short: "Store a session cookie and token",
	Long: `Store the cookie and token of a logged-in mp.weixin.qq.com session
under a profile name. Values are read without echo.`,
	Example: `  # Interactive
  wxexport auth set

  # Named profile
  wxexport auth set work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthSet,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored profiles",
	Long:  `List all stored profiles with masked credentials.`,
	RunE:  runAuthList,
}

// deleteCmd represents the auth delete command
var deleteCmd = &cobra.Command{
	Use:     "delete <profile>",
	Aliases: []string{"logout", "rm"},
	Short:   "Remove a stored profile",
	Args:    cobra.ExactArgs(1),
	RunE:    runAuthDelete,
}

// guideCmd represents the auth guide command
var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to copy the cookie and token from a browser",
	Run: func(cmd *cobra.Command, args []string) {
		auth.WriteCredentialGuide(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(setCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(deleteCmd)
	authCmd.AddCommand(guideCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Profile '%s' already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Println("Enter the session values (input is hidden):")
	fmt.Println()

	var cookie string
	for {
		fmt.Print("Cookie header value: ")
		cookie, err = readSecret(reader)
		if err != nil {
			return fmt.Errorf("failed to read cookie: %w", err)
		}
		if strings.Contains(cookie, "=") {
			break
		}
		fmt.Println("That doesn't look like a Cookie header. It should contain name=value pairs such as slave_sid=...")
		fmt.Print("Try again? (Y/n): ")
		again, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(again)) == "n" {
			return fmt.Errorf("no cookie entered")
		}
	}

	var token string
	for {
		fmt.Print("token (digits from the console URL): ")
		token, err = readSecret(reader)
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		if isDigits(token) {
			break
		}
		fmt.Println("The token is the number after token= in the console address bar.")
	}

	fmt.Print("User Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	account := &auth.Account{
		Name:         name,
		Cookie:       cookie,
		Token:        token,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	masked := auth.SanitizeAccount(account)
	fmt.Println()
	ui.PrintSuccess("Profile saved: " + name)
	ui.PrintInfo("Cookie", masked.Cookie)
	ui.PrintInfo("Token", masked.Token)
	fmt.Println("\nUse it with:")
	fmt.Printf("  wxexport export <account> --profile %s\n", name)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored profiles", "Use 'wxexport auth set' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Profiles")
	fmt.Println()

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Profile: %s\n", i+1, sanitized.Name)
		fmt.Printf("   Cookie: %s\n", sanitized.Cookie)
		fmt.Printf("   Token: %s\n", sanitized.Token)
		if sanitized.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
		}
		if !sanitized.LastModified.IsZero() {
			fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := args[0]
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove profile %q: %w", name, err)
	}
	ui.PrintSuccess("Profile removed: " + name)
	return nil
}

// readSecret reads a value from stdin without echo when it is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Sign in and start a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sf, closeStore, err := openStorefront()
		if err != nil {
			return err
		}
		defer closeStore()

		var email string
		if len(args) == 1 {
			email = args[0]
		} else {
			fmt.Print("Email: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			email = strings.TrimSpace(line)
		}

		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}

		report, err := sf.Auth().Login(cmd.Context(), email, string(pw))
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s (%s)\n", report.User.Name, report.User.Email)
		for _, merr := range report.MergeFailures {
			fmt.Fprintf(os.Stderr, "warning: %v\n", merr)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sf, closeStore, err := openStorefront()
		if err != nil {
			return err
		}
		defer closeStore()

		// Best effort: load the stored token so the server notification can
		// carry it. Logout clears local state regardless.
		_ = sf.Auth().Restore(cmd.Context())
		sf.Auth().Logout()
		fmt.Println("Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		sf, closeStore, err := openStorefront()
		if err != nil {
			return err
		}
		defer closeStore()

		if err := sf.Auth().Restore(cmd.Context()); err != nil {
			return err
		}
		sess := sf.Auth().Current()
		if sess.User == nil {
			fmt.Println("Not signed in")
			return nil
		}
		fmt.Printf("%s <%s> (%s)\n", sess.User.Name, sess.User.Email, sess.User.Role)
		if sess.User.Store != nil {
			fmt.Printf("Store: %s\n", sess.User.Store.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

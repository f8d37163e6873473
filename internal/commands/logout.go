package commands

import (
	"github.com/spf13/cobra"

	"github.com/ldclabs/1paying/internal/output"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the current session",
	Long:  `Remove the stored identity and relay session. The next payment starts anonymous.`,
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manager.Logout(); err != nil {
		return err
	}
	if jsonOutput {
		return output.PrintJSON(map[string]any{"loggedOut": true})
	}
	output.Println("Logged out")
	return nil
}

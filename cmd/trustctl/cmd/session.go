package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the active session",
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the session and MFA-pending markers",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiRequest(http.MethodDelete, "/auth/session", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}
		fmt.Println("Session cleared")
		return nil
	},
}

var sessionFlagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Show the pending remote sign-out flag, if any",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiRequest(http.MethodGet, "/auth/signout/flag", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusNoContent:
			fmt.Println("No pending sign-out flag")
			return nil
		case http.StatusOK:
			_, err := fmt.Println("Pending sign-out flag present")
			return err
		default:
			return apiError(resp)
		}
	},
}

func init() {
	sessionCmd.AddCommand(sessionClearCmd)
	sessionCmd.AddCommand(sessionFlagCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage trusted devices",
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the trusted devices of the authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiRequest(http.MethodGet, "/auth/devices", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}

		var listResp struct {
			Devices []struct {
				ID           string     `json:"id"`
				UserAgent    string     `json:"userAgent"`
				Platform     string     `json:"platform"`
				RegisteredAt time.Time  `json:"registeredAt"`
				RevokedAt    *time.Time `json:"revokedAt,omitempty"`
			} `json:"devices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPLATFORM\tUSER AGENT\tREGISTERED\tSTATUS")
		for _, d := range listResp.Devices {
			status := "active"
			if d.RevokedAt != nil {
				status = "revoked " + d.RevokedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				d.ID, d.Platform, d.UserAgent, d.RegisteredAt.Format(time.RFC3339), status)
		}
		return w.Flush()
	},
}

var deviceRevokeCmd = &cobra.Command{
	Use:   "revoke <device-id>",
	Short: "Revoke a trusted device, signing it out remotely",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiRequest(http.MethodPost, "/auth/devices/"+args[0]+"/revoke", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}
		fmt.Printf("Device %s revoked\n", args[0])
		return nil
	},
}

func init() {
	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceRevokeCmd)
}

func apiRequest(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return nil, err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 15 * time.Second}
	return client.Do(req)
}

func apiError(resp *http.Response) error {
	var apiErr struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("server returned %d: %s (%s)", resp.StatusCode, apiErr.Description, apiErr.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}

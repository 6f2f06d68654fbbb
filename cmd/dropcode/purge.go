package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type purgeResult struct {
	Message         string `json:"message"`
	Error           string `json:"error"`
	FilesDeleted    bool   `json:"filesDeleted"`
	DatabaseCleared bool   `json:"databaseCleared"`
}

// NewPurgeCommand asks a running service to delete all content.
func NewPurgeCommand() *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every record and blob on a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				cfg, err := loadConfig()
				if err != nil {
					return fmt.Errorf("failed to parse config: %w", err)
				}
				baseURL = cfg.BaseURL
			}

			client := &http.Client{Timeout: timeout}
			res, err := purge(cmd.Context(), client, baseURL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "server base URL (defaults to DROPCODE_BASE_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

func purge(ctx context.Context, client *http.Client, baseURL string) (*purgeResult, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/api/delete-all"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("purge request failed: %w", err)
	}
	defer resp.Body.Close()

	var res purgeResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode purge response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("purge failed with status %d: %s: %s", resp.StatusCode, res.Error, res.Message)
	}
	return &res, nil
}

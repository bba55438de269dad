// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/songrules/internal/config"
	"github.com/tomtom215/songrules/internal/models"
)

func newRecommendCmd() *cobra.Command {
	var server string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:     "recommend SONG...",
		Short:   "Ask a running server for recommendations",
		Example: `  songrules recommend --server http://localhost:8080 "Yesterday" "Hey Jude"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: timeout}
			return runRecommend(cmd.Context(), cmd.OutOrStdout(), client, server, args)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of the songrules server")
	cmd.Flags().DurationVar(&timeout, "timeout", 40*time.Second, "Request timeout")

	return cmd
}

func runRecommend(ctx context.Context, out io.Writer, client *http.Client, server string, songs []string) error {
	if err := config.ValidateServerURL(server); err != nil {
		return err
	}

	body, err := json.Marshal(models.RecommendRequest{Songs: songs})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(server, "/") + "/api/recommend"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request recommendations: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope models.APIResponse
		if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
			return fmt.Errorf("server returned %d %s: %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var rec models.RecommendResponse
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	fmt.Fprintf(out, "Server version: %s\n", rec.Version)
	fmt.Fprintf(out, "Model date:     %s\n", rec.ModelDate)
	if len(rec.PlaylistIDs) == 0 {
		fmt.Fprintln(out, "No recommendations.")
		return nil
	}
	fmt.Fprintln(out, "Recommendations:")
	for _, id := range rec.PlaylistIDs {
		fmt.Fprintf(out, "  - %s\n", id)
	}
	return nil
}

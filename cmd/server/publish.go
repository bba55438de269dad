// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/songrules/internal/rules"
)

type publishOptions struct {
	rulesJSON       string
	paths           rules.Paths
	producerVersion string
	dataset         string
}

func newPublishCmd(configPath *string) *cobra.Command {
	opts := publishOptions{}
	var dataDir string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a JSON rule list as a new rule set",
		Long: `publish converts a JSON array of rules into the binary rules file and then
writes the checkpoint, stamped with the current time. Running servers pick the
new rule set up from the checkpoint change.

Each rule is {"antecedent": [...], "consequent": "...", "confidence": 0.5, "lift": 1.2}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.paths = rulesConfig(cfg).Paths
			if cmd.Flags().Changed("data-dir") {
				opts.paths.DataDir = dataDir
			}

			cp, count, err := runPublish(opts, time.Now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %d rules to %s (model date %s)\n",
				count, opts.paths.DataDir, rules.Label(cp.Timestamp))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.rulesJSON, "rules", "", "JSON rule list to publish (required)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory holding the checkpoint and rules files (default: rules.data_dir from config)")
	cmd.Flags().StringVar(&opts.producerVersion, "producer-version", "manual", "Producer version recorded in the checkpoint")
	cmd.Flags().StringVar(&opts.dataset, "dataset", "manual", "Dataset identifier recorded in the checkpoint")
	_ = cmd.MarkFlagRequired("rules")

	return cmd
}

// runPublish writes the rules file first and the checkpoint last, so a
// watcher never sees a checkpoint that is newer than the rules beside it.
func runPublish(opts publishOptions, now func() time.Time) (rules.Checkpoint, int, error) {
	data, err := os.ReadFile(opts.rulesJSON)
	if err != nil {
		return rules.Checkpoint{}, 0, fmt.Errorf("read rule list: %w", err)
	}

	var list []rules.Rule
	if err := json.Unmarshal(data, &list); err != nil {
		return rules.Checkpoint{}, 0, fmt.Errorf("parse rule list: %w", err)
	}
	if err := checkRules(list); err != nil {
		return rules.Checkpoint{}, 0, err
	}

	paths := opts.paths
	if err := os.MkdirAll(paths.DataDir, 0o755); err != nil {
		return rules.Checkpoint{}, 0, fmt.Errorf("create data dir: %w", err)
	}

	if err := rules.WriteRulesFile(paths.RulesPath(), list); err != nil {
		return rules.Checkpoint{}, 0, fmt.Errorf("write rules file: %w", err)
	}

	cp := rules.Checkpoint{
		ProducerVersion: opts.producerVersion,
		DatasetID:       opts.dataset,
		Timestamp:       now().UnixNano(),
	}
	if err := rules.WriteCheckpoint(paths.CheckpointPath(), cp); err != nil {
		return rules.Checkpoint{}, 0, fmt.Errorf("write checkpoint: %w", err)
	}

	return cp, len(list), nil
}

func checkRules(list []rules.Rule) error {
	var errs []error
	for i, r := range list {
		if len(r.Antecedent) == 0 {
			errs = append(errs, fmt.Errorf("rule %d: empty antecedent", i))
		}
		for _, song := range r.Antecedent {
			if strings.TrimSpace(song) == "" {
				errs = append(errs, fmt.Errorf("rule %d: blank antecedent song", i))
				break
			}
		}
		if strings.TrimSpace(r.Consequent) == "" {
			errs = append(errs, fmt.Errorf("rule %d: blank consequent", i))
		}
	}
	return errors.Join(errs...)
}

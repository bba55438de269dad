// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// ErrNoTimestamp is returned when a checkpoint lacks its timestamp field.
var ErrNoTimestamp = errors.New("rules: checkpoint has no timestamp field")

// Checkpoint is the record the producer writes after publishing a rules file:
//
//	<producer_version> <dataset_identifier> <timestamp_nanoseconds>
//
// Only Timestamp decides whether a reload is needed.
type Checkpoint struct {
	ProducerVersion string
	DatasetID       string
	Timestamp       int64
}

// String renders the checkpoint in its file format, without a newline.
func (c Checkpoint) String() string {
	return fmt.Sprintf("%s %s %d", c.ProducerVersion, c.DatasetID, c.Timestamp)
}

// ParseCheckpoint parses checkpoint file content. Fields are separated by any
// whitespace; anything after the third field is ignored.
func ParseCheckpoint(content string) (Checkpoint, error) {
	fields := strings.Fields(content)
	if len(fields) < 3 {
		return Checkpoint{}, fmt.Errorf("%w: got %d fields", ErrNoTimestamp, len(fields))
	}

	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint timestamp %q: %w", fields[2], err)
	}

	return Checkpoint{
		ProducerVersion: fields[0],
		DatasetID:       fields[1],
		Timestamp:       ts,
	}, nil
}

// ReadCheckpoint reads and parses the checkpoint file at path.
func ReadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint file: %w", err)
	}
	return ParseCheckpoint(string(data))
}

// WriteCheckpoint atomically replaces the checkpoint file at path. Version
// and dataset identifiers must not contain whitespace.
func WriteCheckpoint(path string, cp Checkpoint) error {
	if cp.ProducerVersion == "" || strings.ContainsFunc(cp.ProducerVersion, unicode.IsSpace) {
		return fmt.Errorf("invalid producer version %q", cp.ProducerVersion)
	}
	if cp.DatasetID == "" || strings.ContainsFunc(cp.DatasetID, unicode.IsSpace) {
		return fmt.Errorf("invalid dataset identifier %q", cp.DatasetID)
	}

	return writeFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, cp.String()+"\n")
		return err
	})
}


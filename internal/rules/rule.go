// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/ugorji/go/codec"
)

// Default file names inside the data directory.
const (
	DefaultCheckpointName = "ml_processor_checkpoint.txt"
	DefaultRulesName      = "rules.msgpack.zst"
)

// Rule is one mined association rule: listening to every song of Antecedent
// suggests Consequent. Confidence and Lift are carried through the file but
// not used for lookups.
type Rule struct {
	Antecedent []string `codec:"antecedent" json:"antecedent"`
	Consequent string   `codec:"consequent" json:"consequent"`
	Confidence float64  `codec:"confidence" json:"confidence"`
	Lift       float64  `codec:"lift" json:"lift"`
}

// Paths locates the checkpoint and rules files.
type Paths struct {
	DataDir        string
	CheckpointName string
	RulesName      string
}

// DefaultPaths returns the standard file layout under dataDir.
func DefaultPaths(dataDir string) Paths {
	return Paths{
		DataDir:        dataDir,
		CheckpointName: DefaultCheckpointName,
		RulesName:      DefaultRulesName,
	}
}

// CheckpointPath returns the full checkpoint file path.
func (p Paths) CheckpointPath() string {
	return filepath.Join(p.DataDir, p.CheckpointName)
}

// RulesPath returns the full rules file path.
func (p Paths) RulesPath() string {
	return filepath.Join(p.DataDir, p.RulesName)
}

func msgpackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return h
}

// EncodeRules writes rules as a zstd-compressed msgpack array.
func EncodeRules(w io.Writer, rules []Rule) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	if err := codec.NewEncoder(zw, msgpackHandle()).Encode(rules); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush zstd frame: %w", err)
	}
	return nil
}

// DecodeRules reads a zstd-compressed msgpack rule array.
func DecodeRules(r io.Reader) ([]Rule, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var rules []Rule
	if err := codec.NewDecoder(zr, msgpackHandle()).Decode(&rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return rules, nil
}

// ReadRulesFile decodes the rules file at path.
func ReadRulesFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	return DecodeRules(bufio.NewReader(f))
}

// WriteRulesFile atomically replaces the rules file at path.
func WriteRulesFile(path string, rules []Rule) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return EncodeRules(w, rules)
	})
}

// writeFileAtomic writes to a temporary file in the target directory and
// renames it over path, so readers see either the old or the new content.
func writeFileAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

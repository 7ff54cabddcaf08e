package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/ledgerpub/pkg/publisher"
)

// loadRuleset reads a ruleset from a .yaml/.yml or JSON file.
func loadRuleset(path string) (publisher.Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules publisher.Ruleset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rules); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return rules, nil
}

func runValidate(w io.Writer, path string, diff bool) error {
	rules, err := loadRuleset(path)
	if err != nil {
		return err
	}
	engine, err := publisher.NewEngine()
	if err != nil {
		return err
	}
	if err := engine.Validate(rules); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: ok (%d rules)\n", path, len(rules))
	if !diff {
		return nil
	}
	d, err := diffAgainstDefault(rules, path)
	if err != nil {
		return err
	}
	fmt.Fprint(w, d)
	return nil
}

func diffAgainstDefault(rules publisher.Ruleset, name string) (string, error) {
	a, err := yaml.Marshal(publisher.DefaultRuleset())
	if err != nil {
		return "", err
	}
	b, err := yaml.Marshal(rules)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "default",
		ToFile:   name,
		Context:  3,
	})
}

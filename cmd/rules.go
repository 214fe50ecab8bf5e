/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/SheetMetalConnect/api-workshop/internal/rules"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ruleReport 单条工序的校验结果
type ruleReport struct {
	Operation       string        `json:"operation"`
	Valid           bool          `json:"valid"`
	Errors          []string      `json:"errors"`
	Metrics         rules.Metrics `json:"metrics"`
	Recommendations []string      `json:"recommendations"`
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and run the manufacturing rule engine",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rules in execution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, name := range rules.NewEngine(quietLogger()).RuleNames() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, name)
		}
		return nil
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file.json>",
	Short: "Validate operation payloads offline",
	Long: `Run the rule engine against one operation (JSON object) or several
(JSON array) read from a file, or from stdin when the file is "-".
Prints a JSON report and exits non-zero when any payload is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		snapshots, err := decodeSnapshots(raw)
		if err != nil {
			return err
		}

		engine := rules.NewEngine(quietLogger())
		reports := make([]ruleReport, 0, len(snapshots))
		invalid := 0
		for i, s := range snapshots {
			errs := engine.Validate(s)
			if len(errs) > 0 {
				invalid++
			}
			reports = append(reports, ruleReport{
				Operation:       snapshotLabel(i, s),
				Valid:           len(errs) == 0,
				Errors:          errs,
				Metrics:         engine.ComputeMetrics(s),
				Recommendations: engine.Recommend(s),
			})
		}

		out, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		if invalid > 0 {
			return fmt.Errorf("%d of %d operations failed validation", invalid, len(snapshots))
		}
		return nil
	},
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(cmd.InOrStdin()); err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return buf.Bytes(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return raw, nil
}

// decodeSnapshots 支持单个对象或对象数组
func decodeSnapshots(raw []byte) ([]rules.Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("input is empty")
	}
	if trimmed[0] == '[' {
		var list []rules.Snapshot
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("invalid operation list: %w", err)
		}
		return list, nil
	}
	var single rules.Snapshot
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("invalid operation: %w", err)
	}
	return []rules.Snapshot{single}, nil
}

func snapshotLabel(i int, s rules.Snapshot) string {
	var parts []string
	if s.OrderNo != nil {
		parts = append(parts, *s.OrderNo)
	}
	if s.AssetID != nil {
		parts = append(parts, fmt.Sprint(*s.AssetID))
	}
	if s.OperationNo != nil {
		parts = append(parts, *s.OperationNo)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("#%d", i+1)
	}
	return strings.Join(parts, "/")
}

// quietLogger 规则告警写到 stderr,不污染报告输出
func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}

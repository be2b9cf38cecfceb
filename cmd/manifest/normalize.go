package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/manifest/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [description...]",
	Short: "Print the canonical form of charge descriptions",
	Long: `Print the normalized form used as the key for exact rules and learned mappings.

Descriptions are read from the arguments, or one per line from stdin when none are given.

Examples:
  manifest normalize "Terminal Handling Charge USD 150.00"
  cat descriptions.txt | manifest normalize`,
	RunE: runNormalize,
}

func runNormalize(cmd *cobra.Command, args []string) error {
	return eachDescription(cmd.InOrStdin(), args, func(desc string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), normalize.Description(desc))
		return err
	})
}

// eachDescription calls fn for every argument, or for every non-blank stdin line
// when there are no arguments.
func eachDescription(in io.Reader, args []string, fn func(string) error) error {
	if len(args) > 0 {
		for _, a := range args {
			if err := fn(a); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/JaimeStill/manifest/internal/classifier"
)

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		catalogPath, transportMode = "", ""
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestNormalize(t *testing.T) {
	got := execute(t, "", "normalize", "  terminal handling charge USD 150.00 ")
	if strings.TrimSpace(got) != "TERMINAL HANDLING CHARGE" {
		t.Errorf("normalize: got %q", got)
	}
}

func TestNormalizeStdin(t *testing.T) {
	got := execute(t, "thc\n\n  docs fee \n", "normalize")
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 || lines[0] != "THC" || lines[1] != "DOCS FEE" {
		t.Errorf("normalize stdin: got %q", lines)
	}
}

func TestClassify(t *testing.T) {
	got := execute(t, "", "classify", "THC")

	var result classifier.Result
	if err := json.Unmarshal([]byte(got), &result); err != nil {
		t.Fatalf("decode %q: %v", got, err)
	}
	if result.Category != "THC" || result.Method != classifier.MethodExact {
		t.Errorf("classify: got %s via %s, want THC via EXACT", result.Category, result.Method)
	}
}

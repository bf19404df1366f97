// Package cli provides the qwordpatch command and its console output.
package cli

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/ZacharyZcR/QWordPatch/internal/pipeline"
)

// Reporter formats and prints the outcome of a pipeline run.
type Reporter struct {
	path   string
	result *pipeline.Result
}

// NewReporter creates a reporter for the given run result.
func NewReporter(path string, result *pipeline.Result) *Reporter {
	return &Reporter{path: path, result: result}
}

// Print outputs the run summary.
func (r *Reporter) Print() {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()

	if r.result.Halted {
		_, _ = yellow.Printf("no elements were patched - %s left untouched\n", r.path)
		return
	}

	_, _ = green.Printf("✓ patched %d word(s)\n", r.result.Substitutions)
	if r.result.WriteFailures > 0 {
		_, _ = yellow.Printf("⚠ %d matched word(s) failed to write back\n", r.result.WriteFailures)
	}
	if r.result.SignatureRemoved {
		_, _ = green.Println("✓ removed digital signature")
	}
	if r.result.ChecksumUpdated {
		_, _ = green.Printf("✓ updated PE checksum: %08X\n", r.result.Checksum)
	} else {
		_, _ = green.Printf("✓ PE checksum already current: %08X\n", r.result.Checksum)
	}
	if r.result.Signed {
		_, _ = green.Println("✓ applied digital signature")
	}
	_, _ = green.Printf("✓ successfully patched %s\n", r.path)
}

// PrintPatchLine prints one per-offset progress line during the scan.
func PrintPatchLine(offset int64, original, replacement uint64, err error) {
	fmt.Printf("%08X: %016X -> %016X... ", offset, original, replacement)
	if err != nil {
		red := color.New(color.FgRed)
		_, _ = red.Printf("ERROR! (%v)\n", err)
	} else {
		green := color.New(color.FgGreen)
		_, _ = green.Println("SUCCESS")
	}
}

package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ZacharyZcR/QWordPatch/internal/pe"
	"github.com/ZacharyZcR/QWordPatch/internal/pipeline"
)

// Version is stamped at build time.
var Version = "dev"

var (
	patchFile string
	subject   string
	verbose   bool

	// substitutions made by a completed run, reported as the exit code.
	substitutions int
)

var rootCmd = &cobra.Command{
	Use:   "qwordpatch <path> [ORIGINAL REPLACEMENT]...",
	Short: "Patch aligned 64-bit words in a PE binary and re-establish its checksum and signature",
	Long: `qwordpatch scans a PE binary as a sequence of 8-byte aligned words,
replaces every word matching an ORIGINAL value with its REPLACEMENT, then
strips the stale digital signature, repairs the header checksum and
re-signs the file with a self-issued identity so it still loads.

Values are 64-bit hexadecimal and must be aligned to 64 bits in the file.
A backup is written to <path>.bak before the first mutation and is never
overwritten by later runs.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&patchFile, "patch-file", "", "YAML file with original/replacement pairs (applied before argv pairs)")
	rootCmd.Flags().StringVar(&subject, "subject", pe.DefaultSubject, "common name of the self-issued signing certificate")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI and returns the process exit code: the substitution
// count on a completed run, a negative code otherwise.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "error: %v\n", err)
		return pipeline.ExitCode(err)
	}
	return substitutions
}

func run(cmd *cobra.Command, args []string) error {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	fmt.Fprintf(os.Stderr, "qwordpatch %s\n\n", Version)

	if len(args) < 1 {
		_ = cmd.Usage()
		return pipeline.ErrNoPath
	}
	target := args[0]

	var pairs []pe.PatchPair
	if patchFile != "" {
		manifestPairs, err := pipeline.LoadManifest(patchFile)
		if err != nil {
			return err
		}
		pairs = append(pairs, manifestPairs...)
	}

	argPairs, err := pipeline.ParsePairs(args[1:])
	if err != nil {
		return err
	}
	pairs = append(pairs, argPairs...)

	result, err := pipeline.Run(pipeline.Config{
		Path:     target,
		Pairs:    pairs,
		Subject:  subject,
		Progress: PrintPatchLine,
	})
	if err != nil {
		return err
	}

	NewReporter(target, result).Print()

	if verbose && result.Signed {
		if info, err := pe.ReadSignature(target); err == nil {
			for _, s := range info.Subjects {
				logrus.Debugf("embedded signer: %s", s)
			}
		}
	}

	substitutions = result.Substitutions
	return nil
}

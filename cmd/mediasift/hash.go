package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/mediasift/internal/grouping"
	"github.com/steveyegge/mediasift/internal/imagehash"
	"github.com/steveyegge/mediasift/internal/types"
)

var hashAlgorithms = []types.Algorithm{
	types.AlgorithmAverage,
	types.AlgorithmDifference,
	types.AlgorithmFrequency,
}

var hashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Print the perceptual fingerprints of image files",
	Long: `Print the average, difference and frequency fingerprints of each file,
using the hash size and frequency factor from the configuration.

Examples:
  mediasift hash cat.jpg
  mediasift hash a.png b.png`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := printHashes(os.Stdout, cfg.Grouping, args); err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
}

// printHashes writes one line per file and algorithm. Files that cannot be
// decoded are reported and counted; the error names how many failed.
func printHashes(w io.Writer, cfg grouping.Config, paths []string) error {
	codec := imagehash.NewCodec()
	codec.Size = cfg.HashSize
	codec.Factor = cfg.FrequencyFactor
	if err := codec.Validate(); err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", path, err)
			failed++
			continue
		}
		set, ok := codec.FromBytes(data, hashAlgorithms...)
		if !ok {
			fmt.Fprintf(w, "%s: could not be fingerprinted\n", path)
			failed++
			continue
		}
		for _, alg := range hashAlgorithms {
			fmt.Fprintf(w, "%s\t%s\n", path, set[alg])
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be fingerprinted", failed, len(paths))
	}
	return nil
}

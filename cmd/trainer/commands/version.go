package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"trainer/internal/nn"
	"trainer/internal/preprocess"
)

// buildInfo is stamped by main from -ldflags.
type buildInfo struct {
	Version string
	Commit  string
	Date    string
}

var build = buildInfo{Version: "dev", Commit: "none", Date: "unknown"}

// SetVersion records the build stamp reported by the version command.
func SetVersion(version, commit, date string) {
	build = buildInfo{Version: version, Commit: commit, Date: date}
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the build and the artifact formats it writes",
		Long: `Print the trainer build stamp and the formats of the two artifacts a
training run produces: the chat sender classifier checkpoint and the
vocabulary export that the classifier's ids refer to. A consumer must
read both files with matching formats.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trainer %s (commit %s, built %s)\n", build.Version, build.Commit, build.Date)
			fmt.Fprintf(out, "checkpoint format: %s\n", nn.CheckpointFormat)
			fmt.Fprintf(out, "vocabulary format: %s\n", preprocess.VocabularyFormat)
		},
	}
}

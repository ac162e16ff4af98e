package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// SetupLogging installs the default slog handler according to the root
// --verbose and --quiet flags. Logs go to stderr so stdout stays parseable.
func SetupLogging(cmd *cobra.Command) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel(verbose, quiet),
	})))
}

func logLevel(verbose, quiet bool) slog.Level {
	switch {
	case quiet:
		return slog.LevelError
	case verbose:
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}

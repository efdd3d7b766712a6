package format

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// FromCommand builds a Formatter from the command's writers and the
// --output, --quiet and --no-color flags. Commands that do not carry a
// flag get its default. Color also turns off when NO_COLOR is set or
// stdout is not a terminal.
func FromCommand(cmd *cobra.Command) Formatter {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	mode := ModeTable
	if v, err := cmd.Flags().GetString("output"); err == nil {
		mode = ParseMode(v)
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	_, noColorEnv := os.LookupEnv("NO_COLOR")

	color := !noColor && !noColorEnv && isTerminal(stdout)
	return New(stdout, stderr, mode, quiet, color)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

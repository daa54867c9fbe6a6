package cmd

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Run parses args and executes the selected sub-command, writing results to
// stdout and logs to stderr.
func Run(args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := &Options{}
	opts.Init(commandName(args))

	setSession(&session{
		cfg:    cfg,
		opts:   opts,
		stdout: stdout,
		stderr: stderr,
	})
	defer setSession(nil)

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	_, err = parser.ParseArgs(args)
	return err
}

// Main is the entry point used by the statemap binary.
func Main() {
	if err := Run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Stdout.WriteString(flagsErr.Message + "\n")
			return
		}
		slog.Error("statemap failed", "error", err)
		os.Exit(1)
	}
}

// flagsWithValue are the global flags that take a separate value argument.
var flagsWithValue = map[string]bool{
	"-d": true, "--db": true,
	"-b": true, "--backend": true,
	"--metrics-file": true,
}

// commandName returns the first argument that is neither a flag nor the value
// of one.
func commandName(args []string) string {
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "--":
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		case flagsWithValue[arg]:
			i++
		case strings.HasPrefix(arg, "-"):
		default:
			return arg
		}
	}
	return ""
}

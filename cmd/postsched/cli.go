package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/aristath/postsched/internal/anchor"
	"github.com/aristath/postsched/internal/engine"
)

// ExitError carries a process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// options are the parsed command-line flags.
type options struct {
	ConfigPath string
	DBPath     string
	Name       string
	ImportPath string
	ExportPath string
	Load       bool
	List       bool
	Rows       bool
	Watch      bool
	TUI        bool
	Resolve    string
	LogLevel   string
	LogFormat  string
}

// parseFlags processes args. It returns shouldExit for -h.
func parseFlags(args []string, output io.Writer) (*options, bool, error) {
	fs := flag.NewFlagSet("postsched", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
postsched - post-production scheduler for episodic television.

Usage:
  postsched [options]

Without -config the configuration is read from ~/.postsched/config.json
and .postsched/config.json, falling back to the hour-long preset.

Options:
`)
		fs.PrintDefaults()
	}

	o := &options{}
	fs.StringVar(&o.ConfigPath, "config", "", "Path to a JSON or YAML configuration file.")
	fs.StringVar(&o.DBPath, "db", "", "SQLite database for saved schedules.")
	fs.StringVar(&o.Name, "name", engine.DefaultName, "Schedule name inside the database.")
	fs.StringVar(&o.ImportPath, "import", "", "Start from an exported schedule document.")
	fs.StringVar(&o.ExportPath, "export", "", "Write the schedule document to this path.")
	fs.BoolVar(&o.Load, "load", false, "Start from the schedule saved under -name in -db.")
	fs.BoolVar(&o.List, "list", false, "List the schedules saved in -db and exit.")
	fs.BoolVar(&o.Rows, "rows", false, "Print visible tasks as JSON rows instead of the summary.")
	fs.BoolVar(&o.Watch, "watch", false, "Recalculate whenever the -config file changes.")
	fs.BoolVar(&o.TUI, "tui", false, "Open the terminal viewer.")
	fs.StringVar(&o.Resolve, "resolve", "", "Answer for anchor conflicts: preserve-all, update-all or recommended.")
	fs.StringVar(&o.LogLevel, "log-level", "info", "Logging level: debug, info, warn or error.")
	fs.StringVar(&o.LogFormat, "log-format", "text", "Log format: text or json.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", fs.Arg(0))}
	}

	o.LogFormat = strings.ToLower(o.LogFormat)
	if o.LogFormat != "text" && o.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	o.LogLevel = strings.ToLower(o.LogLevel)
	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if o.Resolve != "" {
		mode, err := anchor.ParseMode(o.Resolve)
		if err != nil || mode == anchor.ModeSelective {
			return nil, false, &ExitError{Code: 2, Message: "invalid resolve: must be 'preserve-all', 'update-all' or 'recommended'"}
		}
	}

	switch {
	case o.Watch && o.ConfigPath == "":
		return nil, false, &ExitError{Code: 2, Message: "-watch needs -config"}
	case (o.Load || o.List) && o.DBPath == "":
		return nil, false, &ExitError{Code: 2, Message: "-load and -list need -db"}
	case o.Load && o.ImportPath != "":
		return nil, false, &ExitError{Code: 2, Message: "-load and -import are exclusive"}
	}
	return o, false, nil
}

// resolution is the policy for conflicts nobody is around to answer.
func (o *options) resolution() anchor.Resolution {
	mode, err := anchor.ParseMode(o.Resolve)
	if err != nil {
		mode = anchor.ModePreserveAll
	}
	return anchor.Resolution{Mode: mode}
}

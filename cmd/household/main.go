// Command household records shared household expenses on this device and
// keeps them in sync with the household ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"household/internal/cli"
	"household/internal/config"
	applog "household/internal/log"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"add", "add [-date YYYY-MM-DD] [-category C] [-memo M] AMOUNT", cmdAdd},
	{"edit", "edit [-amount A] [-date D] [-category C] [-memo M] ID", cmdEdit},
	{"rm", "rm ID", cmdRm},
	{"ls", "ls [-month YYYY-MM]", cmdLs},
	{"sync", "sync", cmdSync},
	{"budget", "budget [-month YYYY-MM] [AMOUNT]", cmdBudget},
	{"conflicts", "conflicts [dismiss DUPLICATE_ID]", cmdConflicts},
	{"export", "export [-month YYYY-MM] [-o FILE]", cmdExport},
	{"daemon", "daemon", cmdDaemon},
}

var errUsage = errors.New("usage")

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd, ok := lookup(os.Args[1])
	if !ok {
		usage(os.Stderr)
		os.Exit(2)
	}

	if err := cfg.Validate(config.RoleDevice); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()

	a, err := openApp(ctx, cfg, logger, os.Stdout)
	if err != nil {
		logger.Error("Startup failed", applog.FieldError, err)
		os.Exit(1)
	}

	err = cmd.run(ctx, a, os.Args[2:])
	if cerr := a.Close(); cerr != nil {
		logger.Warn("Close failed", applog.FieldError, cerr)
	}
	switch {
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fmt.Fprintf(os.Stderr, "usage: household %s\n", cmd.summary)
		os.Exit(2)
	case err != nil:
		logger.Error("Command failed", "command", cmd.name, applog.FieldError, err)
		os.Exit(1)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer) {
	var b strings.Builder
	b.WriteString("usage: household <command> [arguments]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %s\n", c.summary)
	}
	fmt.Fprint(w, b.String())
}

package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"noescape.gg/internal/config"
)

func configCmd(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("config: want check|schema|init")
	}
	sub, rest := args[0], args[1:]
	fs := flag.NewFlagSet("config "+sub, flag.ContinueOnError)
	path := fs.String("config", "./configs/noescape.yaml", "config path")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	switch sub {
	case "schema":
		b, err := config.SchemaJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err

	case "check":
		raw, err := os.ReadFile(*path)
		if err != nil {
			return err
		}
		if err := config.Check(raw); err != nil {
			return fmt.Errorf("%s: %w", *path, err)
		}
		cfg, rep := config.Decode(raw)
		if len(rep.Repaired) > 0 {
			return fmt.Errorf("%s: invalid values at %s", *path, strings.Join(rep.Repaired, ", "))
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", *path, err)
		}
		if len(rep.Missing) > 0 {
			fmt.Fprintf(out, "missing (defaults apply): %s\n", strings.Join(rep.Missing, ", "))
		}
		if len(rep.Unknown) > 0 {
			fmt.Fprintf(out, "unknown (ignored): %s\n", strings.Join(rep.Unknown, ", "))
		}
		fmt.Fprintf(out, "%s ok\n", *path)
		return nil

	case "init":
		logger := log.New(out, "", 0)
		_, rep, err := config.LoadOrInit(*path, logger)
		if err != nil {
			return err
		}
		if !rep.Dirty() {
			fmt.Fprintf(out, "%s up to date\n", *path)
		}
		return nil
	}
	return fmt.Errorf("config: unknown subcommand %q", sub)
}

package main

import (
	"fmt"
	"os"
)

const usage = `usage: admin <command> [flags]

commands:
  db events|denials|zones   query the sqlite event index
  log                       decode block event logs (data/events/*.jsonl.zst)
  config check|schema|init  validate, print the schema of, or write noescape.yaml
  state                     dump live engine state (loopback admin http)
  stop                      stop an actor's blocks (loopback admin http)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "db":
		err = dbCmd(os.Args[2:], os.Stdout)
	case "log":
		err = logCmd(os.Args[2:], os.Stdout)
	case "config":
		err = configCmd(os.Args[2:], os.Stdout)
	case "state":
		err = stateCmd(os.Args[2:], os.Stdout)
	case "stop":
		err = stopCmd(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

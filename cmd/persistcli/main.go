// Command persistcli is a thin reference command-line tool over a named
// persist.Table file: init, get, set, delete, list, clear, stats.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/persistkv/persist"
	"github.com/persistkv/persist/pkg/fs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	flags := pflag.NewFlagSet("persistcli", pflag.ContinueOnError)
	flags.SetOutput(stderr)

	configPath := flags.StringP("config", "c", "", "path to HuJSON config file")
	tablePath := flags.StringP("table", "t", "", "path to the table file (overrides config)")

	if err := flags.Parse(args); err != nil {
		return 1
	}

	rest := flags.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, "usage: persistcli [-c config] [-t table] <init|get|set|delete|list|clear|stats> ...")

		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}

	if *tablePath != "" {
		cfg.TablePath = *tablePath
	}

	cmd, cmdArgs := rest[0], rest[1:]

	if cmd == "init" {
		if err := writeDefaultConfig(*configPath); err != nil {
			fmt.Fprintln(stderr, err)

			return 1
		}

		return 0
	}

	table, err := persist.OpenOrCreate(cfg.TablePath)
	if err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}

	defer table.Close()

	closeOnSignal(table)

	if err := dispatch(table, cfg, cmd, cmdArgs, stdout); err != nil {
		fmt.Fprintln(stderr, err)

		return 1
	}

	return 0
}

// closeOnSignal flushes and closes table before the process terminates
// on SIGINT/SIGTERM, so an interrupted write leaves a consistent file.
func closeOnSignal(table *persist.Table) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		_ = table.Flush()
		_ = table.Close()
		os.Exit(130)
	}()
}

func dispatch(table *persist.Table, cfg config, cmd string, args []string, stdout *os.File) error {
	switch cmd {
	case "get":
		return cmdGet(table, args, stdout)
	case "set":
		return cmdSet(table, cfg, args)
	case "delete":
		return cmdDelete(table, args, stdout)
	case "list":
		return cmdList(table, stdout)
	case "clear":
		return table.Clear()
	case "stats":
		return cmdStats(table, args, stdout)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdGet(table *persist.Table, args []string, stdout *os.File) error {
	if len(args) != 1 {
		return fmt.Errorf("get requires exactly one key argument")
	}

	value, ok := table.Get([]byte(args[0]))
	if !ok {
		return fmt.Errorf("key %q not found", args[0])
	}

	fmt.Fprintln(stdout, string(value))

	return nil
}

func cmdSet(table *persist.Table, cfg config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("set requires a key and a value argument")
	}

	if _, _, err := table.Set([]byte(args[0]), []byte(args[1])); err != nil {
		return err
	}

	if cfg.SyncOnWrite {
		return table.Flush()
	}

	return nil
}

func cmdDelete(table *persist.Table, args []string, stdout *os.File) error {
	if len(args) != 1 {
		return fmt.Errorf("delete requires exactly one key argument")
	}

	value, ok, err := table.Delete([]byte(args[0]))
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("key %q not found", args[0])
	}

	fmt.Fprintln(stdout, string(value))

	return nil
}

func cmdList(table *persist.Table, stdout *os.File) error {
	for _, e := range table.Iter() {
		fmt.Fprintf(stdout, "%s\t%s\n", e.Key, e.Value)
	}

	return nil
}

func cmdStats(table *persist.Table, args []string, stdout *os.File) error {
	flags := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	exportPath := flags.String("export", "", "atomically write the stats as JSON to this path")

	if err := flags.Parse(args); err != nil {
		return err
	}

	stats := table.Stats()

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	if *exportPath == "" {
		fmt.Fprintln(stdout, string(data))

		return nil
	}

	writer := fs.NewAtomicWriter(fs.NewReal())

	return writer.WriteWithDefaults(*exportPath, bytes.NewReader(data))
}

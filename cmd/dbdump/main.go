package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/sqlshell/dbdump/internal/logcli"
	"github.com/sqlshell/dbdump/pkg/dumpconfig"
	"github.com/sqlshell/dbdump/pkg/dumper"
	"github.com/sqlshell/dbdump/pkg/metrics"
	"github.com/sqlshell/dbdump/pkg/pidlock"
)

const defaultConfigPath = dumpconfig.DefaultConfigPath

var version = "unknown"

func main() {
	log.SetHandler(logcli.New(os.Stdout))
	cliapp := cli.NewApp()
	cliapp.Name = "dbdump"
	cliapp.Usage = "Parallel, consistent, chunked logical dumper"
	cliapp.UsageText = "dbdump dump [-c, --config=<path>] [-q, --quiet]"
	cliapp.Version = version

	cliapp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  defaultConfigPath,
			Usage:  "Config `FILE` name.",
			EnvVar: "DBDUMP_CONFIG",
		},
	}
	cliapp.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Printf("Error. Unknown command: '%s'\n\n", command)
		cli.ShowAppHelpAndExit(c, 1)
	}
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Println("Version:\t", c.App.Version)
	}

	cliapp.Commands = []cli.Command{
		{
			Name:      "dump",
			Usage:     "Run one dump job",
			UsageText: "dbdump dump [-c, --config=<path>] [-q, --quiet]",
			Action: func(c *cli.Context) error {
				return runDump(getConfig(c), c.Bool("quiet"))
			},
			Flags: append(cliapp.Flags,
				cli.BoolFlag{
					Name:  "quiet, q",
					Usage: "Disable the progress bar",
				},
			),
		},
		{
			Name:  "default-config",
			Usage: "Print default config",
			Action: func(*cli.Context) error {
				return printDefaultConfig()
			},
			Flags: cliapp.Flags,
		},
	}

	if err := cliapp.Run(os.Args); err != nil {
		log.Fatal(err.Error())
	}
}

func runDump(cfg *dumpconfig.Config, quiet bool) error {
	if err := pidlock.CheckAndCreatePidFile(cfg.Output.URL, "dump"); err != nil {
		return err
	}
	defer pidlock.RemovePidFile(cfg.Output.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigterm
		log.Warn("received interrupt, cancelling the dump")
		cancel()
	}()

	m := metrics.NewDumpMetrics()
	m.RegisterMetrics()
	go metrics.Serve(ctx, os.Getenv("DBDUMP_METRICS_LISTEN"))

	return dumper.New(cfg).
		WithProgressBar(!quiet, 0).
		WithMetrics(m).
		Run(ctx)
}

func printDefaultConfig() error {
	cfg := dumpconfig.DefaultConfig()
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(cfg)
}

func getConfig(ctx *cli.Context) *dumpconfig.Config {
	configPath := getConfigPath(ctx)
	cfg, err := dumpconfig.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err.Error())
	}
	return cfg
}

func getConfigPath(ctx *cli.Context) string {
	if ctx.String("config") != defaultConfigPath {
		return ctx.String("config")
	}
	if ctx.GlobalString("config") != defaultConfigPath {
		return ctx.GlobalString("config")
	}
	if os.Getenv("DBDUMP_CONFIG") != "" {
		return os.Getenv("DBDUMP_CONFIG")
	}
	return defaultConfigPath
}

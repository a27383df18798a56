package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	odataclient "github.com/robert-malhotra/go-odata-query/client"
	"github.com/robert-malhotra/go-odata-query/pkg/filter"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

const (
	schemaFlag   = "schema"
	resourceFlag = "resource"
	baseURLFlag  = "url"
	timeoutFlag  = "timeout"
	verboseFlag  = "verbose"
	lowerFlag    = "lowercase"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     schemaFlag,
			Aliases:  []string{"s"},
			Usage:    "YAML file declaring the entity schemas",
			Required: true,
		},
		&cli.StringFlag{
			Name:     resourceFlag,
			Aliases:  []string{"r"},
			Usage:    "name of the schema the query ranges over",
			Required: true,
		},
		&cli.StringFlag{
			Name:    baseURLFlag,
			Aliases: []string{"u"},
			Usage:   "collection URL, e.g. http://host/svc/Users",
		},
		&cli.DurationFlag{
			Name:    timeoutFlag,
			Aliases: []string{"t"},
			Usage:   "HTTP client timeout (e.g. 30s, 1m)",
			Value:   30 * time.Second,
		},
		&cli.BoolFlag{
			Name:  verboseFlag,
			Usage: "log requests to stderr",
		},
		&cli.BoolFlag{
			Name:  lowerFlag,
			Usage: "write member names in lower case and read them case-insensitively",
		},
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "odataq",
		Usage: "Parse, render and run OData v3 queries",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			newParseCommand(),
			newURICommand(),
			newFetchCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resourceFromCommand loads the schema file and returns the schema named by
// --resource.
func resourceFromCommand(cmd *cli.Command) (*schema.Schema, error) {
	reg, err := schema.LoadFile(cmd.String(schemaFlag))
	if err != nil {
		return nil, err
	}
	name := cmd.String(resourceFlag)
	s, ok := reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("schema file has no resource %q (have %v)", name, reg.Names())
	}
	return s, nil
}

// clientFromCommand builds the HTTP client for fetch.
func clientFromCommand(cmd *cli.Command, logger odataclient.Logger) (*odataclient.Client, error) {
	return odataclient.New(
		odataclient.WithTimeout(cmd.Duration(timeoutFlag)),
		odataclient.WithLogger(logger),
	)
}

func resolverFromCommand(cmd *cli.Command) filter.NameResolver {
	if cmd.Bool(lowerFlag) {
		return filter.LowerCase{}
	}
	return filter.WireNames{}
}

func loggerFromCommand(cmd *cli.Command) *slog.Logger {
	level := slog.LevelWarn
	if cmd.Bool(verboseFlag) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(errWriter(cmd), &slog.HandlerOptions{Level: level}))
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

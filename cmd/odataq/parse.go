package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-odata-query/pkg/filter"
)

func newParseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Type-check a $filter expression and print its tree and normalized text",
		ArgsUsage: "<filter>",
		Action:    parseAction,
	}
}

func parseAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected 1 argument: filter expression")
	}
	s, err := resourceFromCommand(cmd)
	if err != nil {
		return err
	}
	r := resolverFromCommand(cmd)
	pred, err := filter.Build(cmd.Args().First(), s, filter.WithResolver(r))
	if err != nil {
		return err
	}
	text, err := filter.Write(pred, r)
	if err != nil {
		return err
	}

	w := writer(cmd)
	fmt.Fprintf(w, "tree:   %s\n", pred)
	fmt.Fprintf(w, "type:   %s\n", pred.Body.Type())
	fmt.Fprintf(w, "filter: %s\n", text)
	return nil
}

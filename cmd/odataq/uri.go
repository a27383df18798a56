package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-odata-query/pkg/filter"
	"github.com/robert-malhotra/go-odata-query/pkg/projection"
	"github.com/robert-malhotra/go-odata-query/query"
)

// queryFlags are the system query options shared by uri and fetch.
func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "$filter expression"},
		&cli.StringFlag{Name: "orderby", Aliases: []string{"o"}, Usage: "$orderby list, e.g. \"Age desc,UserName\""},
		&cli.StringFlag{Name: "select", Usage: "$select list"},
		&cli.StringFlag{Name: "expand", Usage: "$expand list"},
		&cli.IntFlag{Name: "skip", Usage: "$skip count"},
		&cli.IntFlag{Name: "top", Usage: "$top count"},
	}
}

func newURICommand() *cli.Command {
	return &cli.Command{
		Name:   "uri",
		Usage:  "Validate query options and print the request URI",
		Flags:  queryFlags(),
		Action: uriAction,
	}
}

// modelFromCommand parses the query option flags the way a service would
// parse the query string.
func modelFromCommand(cmd *cli.Command) (*query.Model, error) {
	s, err := resourceFromCommand(cmd)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	for _, name := range []string{"filter", "orderby", "select", "expand"} {
		if v := cmd.String(name); v != "" {
			values.Set("$"+name, v)
		}
	}
	for _, name := range []string{"skip", "top"} {
		if cmd.IsSet(name) {
			values.Set("$"+name, strconv.Itoa(int(cmd.Int(name))))
		}
	}
	return query.ParseParameters(values, s, projection.Default, filter.WithResolver(resolverFromCommand(cmd)))
}

func uriAction(ctx context.Context, cmd *cli.Command) error {
	m, err := modelFromCommand(cmd)
	if err != nil {
		return err
	}
	base := cmd.String(baseURLFlag)
	if base == "" {
		base = m.Schema.Name()
	}
	uri, err := m.BuilderWith(base, resolverFromCommand(cmd)).GetFullURI()
	if err != nil {
		return err
	}
	fmt.Fprintln(writer(cmd), uri)
	return nil
}

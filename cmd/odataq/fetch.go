package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	odataclient "github.com/robert-malhotra/go-odata-query/client"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
	"github.com/robert-malhotra/go-odata-query/query"
)

func newFetchCommand() *cli.Command {
	flags := append(queryFlags(),
		&cli.BoolFlag{
			Name:  "no-follow",
			Usage: "stop after the first page instead of following next links",
		},
		&cli.BoolFlag{
			Name:    "interactive",
			Aliases: []string{"i"},
			Usage:   "Prompt between batches of results",
		},
		&cli.IntFlag{
			Name:  "page-size",
			Value: 10,
			Usage: "records printed between prompts with --interactive",
		},
	)
	return &cli.Command{
		Name:   "fetch",
		Usage:  "Run the query against --url and print the results as a JSON array",
		Flags:  flags,
		Action: fetchAction,
	}
}

func fetchAction(ctx context.Context, cmd *cli.Command) error {
	baseURL := cmd.String(baseURLFlag)
	if baseURL == "" {
		return fmt.Errorf("flag --url is required")
	}
	m, err := modelFromCommand(cmd)
	if err != nil {
		return err
	}

	logger := odataclient.NewSlogLogger(loggerFromCommand(cmd))
	client, err := clientFromCommand(cmd, logger)
	if err != nil {
		return err
	}

	opts := []query.Option{
		query.WithResolver(resolverFromCommand(cmd)),
		query.WithLogger(logger),
	}
	if !cmd.Bool("no-follow") {
		opts = append(opts, query.WithFollowNextLinks())
	}
	q := query.New[*schema.Record](client, odataclient.RecordDecoder{Schema: m.Schema}, baseURL, m.Schema, opts...)
	q = applyModel(q, m)
	if err := q.Err(); err != nil {
		return err
	}

	seq := q.Iter(ctx)
	marshal := func(r *schema.Record) ([]byte, error) {
		return json.MarshalIndent(r, "", "  ")
	}

	var pg *pager
	if cmd.Bool("interactive") {
		pg = newPager(errWriter(cmd), os.Stdin, int(cmd.Int("page-size")))
	}
	return printRecords(writer(cmd), seq, marshal, pg)
}

// applyModel replays parsed query options as query operators, in the order
// a service evaluates them.
func applyModel(q *query.Query[*schema.Record], m *query.Model) *query.Query[*schema.Record] {
	if m.Filter.Body != nil {
		q = q.Where(m.Filter)
	}
	for i, k := range m.OrderBy {
		switch {
		case i == 0 && k.Direction == query.Descending:
			q = q.OrderByDescending(k.Key)
		case i == 0:
			q = q.OrderBy(k.Key)
		case k.Direction == query.Descending:
			q = q.ThenByDescending(k.Key)
		default:
			q = q.ThenBy(k.Key)
		}
	}
	if m.Skip != nil {
		q = q.Skip(*m.Skip)
	}
	if m.Top != nil {
		q = q.Take(*m.Top)
	}
	if len(m.Expand) > 0 {
		q = q.Expand(m.Expand...)
	}
	if m.Select != nil {
		q = query.Select(q, m.Select.Schema().Names()...)
	}
	return q
}

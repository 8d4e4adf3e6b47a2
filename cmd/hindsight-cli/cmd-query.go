package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"github.com/hindsightlabs/hindsight/archive/router"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

// domainArgs are the query parameters shared by the query commands. They map
// one to one onto a domain spec.
type domainArgs struct {
	Domain string `arg:"" help:"domain or url to query (e.g. example.org)"`

	MatchType          string `default:"domain" enum:"exact,prefix,domain,regex" help:"how capture urls are matched against the domain"`
	URLPath            string `help:"path filter (exact/prefix) or url pattern (regex)"`
	From               string `help:"start of the capture window (yyyyMMdd)"`
	To                 string `help:"end of the capture window (yyyyMMdd)"`
	PageSize           int    `help:"override the provider page size"`
	MaxPages           int    `help:"cap the number of index pages fetched"`
	MinPageSize        int    `help:"skip captures smaller than this many bytes"`
	MaxPageSize        int    `help:"skip captures larger than this many bytes"`
	IncludeAttachments bool   `help:"include pdf captures"`
}

func (d *domainArgs) spec() model.Domain {
	return model.Domain{
		ID:                 "cli",
		Name:               d.Domain,
		MatchType:          model.MatchType(d.MatchType),
		URLPath:            d.URLPath,
		FromDate:           d.From,
		ToDate:             d.To,
		PageSize:           d.PageSize,
		MaxPages:           d.MaxPages,
		MinPageSize:        d.MinPageSize,
		MaxPageSize:        d.MaxPageSize,
		IncludeAttachments: d.IncludeAttachments,
	}
}

type queryCapturesCmd struct {
	domainArgs

	Limit  int    `default:"25" help:"max rows to print, 0 prints all"`
	Output string `default:"table" enum:"table,json" help:"output format"`
}

func (cmd *queryCapturesCmd) Run(opts *globalOptions) error {
	logger, cfg, err := opts.setup()
	if err != nil {
		return err
	}

	rtr, err := router.New(cfg.Archive, nil, logger)
	if err != nil {
		return err
	}

	res, err := rtr.QueryUnified(context.Background(), source.QueryRequest{Domain: cmd.spec()})
	if err != nil {
		return err
	}

	if cmd.Output == "json" {
		out, err := jsoniter.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	rows := make([][]string, 0, len(res.Captures))
	for i, c := range res.Captures {
		if cmd.Limit > 0 && i == cmd.Limit {
			break
		}
		rows = append(rows, []string{
			c.Timestamp,
			truncate(c.OriginalURL, 80),
			c.MimeType,
			strconv.Itoa(c.StatusCode),
			humanize.Bytes(uint64(c.Length)),
			c.Digest,
		})
	}
	renderTable([]string{"timestamp", "url", "mime", "status", "size", "digest"}, rows)

	s := res.Stats
	fmt.Printf("\n%s captures from %s: %d/%d pages fetched, %s records scanned, %d duplicates and %d list pages filtered, took %s\n",
		humanize.Comma(int64(len(res.Captures))), s.Source, s.PagesFetched, s.TotalPages,
		humanize.Comma(int64(s.RecordsFound)), s.Filter.DuplicateFiltered, s.Filter.ListPagesFiltered,
		s.Duration.Round(time.Millisecond))
	if cmd.Limit > 0 && len(res.Captures) > cmd.Limit {
		fmt.Printf("(showing the first %d rows)\n", cmd.Limit)
	}
	return nil
}

type queryPagesCmd struct {
	domainArgs
}

func (cmd *queryPagesCmd) Run(opts *globalOptions) error {
	logger, cfg, err := opts.setup()
	if err != nil {
		return err
	}

	rtr, err := router.New(cfg.Archive, nil, logger)
	if err != nil {
		return err
	}

	probes := rtr.ProbePages(context.Background(), source.QueryRequest{Domain: cmd.spec()})
	if len(probes) == 0 {
		fmt.Println("no configured source supports the page count probe")
		return nil
	}

	total := 0
	rows := make([][]string, 0, len(probes))
	for _, p := range probes {
		pages := strconv.Itoa(p.Pages)
		if p.Error != "" {
			pages = "-"
		}
		rows = append(rows, []string{p.Source, pages, truncate(p.Error, 60)})
		total += p.Pages
	}
	renderTable([]string{"source", "pages", "error"}, rows)
	fmt.Printf("\n%s index pages across %d sources\n", humanize.Comma(int64(total)), len(probes))
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/archive/router"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/pkg/extraction"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

type extractURLCmd struct {
	URL string `arg:"" help:"original url to extract"`

	Timestamp string `help:"capture timestamp (yyyyMMddhhmmss); the newest capture when empty"`
	MimeType  string `default:"text/html" help:"capture mime type"`
	ShowText  bool   `help:"print the full extracted text"`
	Markdown  bool   `help:"print the markdown rendering instead of the summary"`
}

func (cmd *extractURLCmd) Run(opts *globalOptions) error {
	logger, cfg, err := opts.setup()
	if err != nil {
		return err
	}

	capture := model.Capture{
		Timestamp:   cmd.Timestamp,
		OriginalURL: cmd.URL,
		MimeType:    cmd.MimeType,
	}

	if capture.Timestamp == "" {
		rtr, err := router.New(cfg.Archive, nil, logger)
		if err != nil {
			return err
		}

		res, err := rtr.QueryUnified(context.Background(), source.QueryRequest{
			Domain: model.Domain{ID: "cli", Name: cmd.URL, MatchType: model.MatchExact},
		})
		if err != nil {
			return err
		}
		if len(res.Captures) == 0 {
			return errors.Errorf("no captures of %s", cmd.URL)
		}

		// fixed-width CDX timestamps order lexicographically
		capture = res.Captures[0]
		for _, c := range res.Captures[1:] {
			if c.Timestamp > capture.Timestamp {
				capture = c
			}
		}
	}

	extractor, err := extraction.NewHybridExtractor(cfg.Extraction, logger)
	if err != nil {
		return err
	}

	content, err := extractor.Extract(context.Background(), capture)
	if err != nil {
		return err
	}

	if cmd.Markdown {
		fmt.Println(content.Markdown)
		return nil
	}

	fmt.Println("Archive URL  : ", capture.ArchiveURL())
	fmt.Println("Title        : ", content.Title)
	fmt.Println("Method       : ", content.ExtractionMethod)
	fmt.Println("Language     : ", content.Language)
	fmt.Println("Author       : ", content.Author)
	fmt.Println("Published    : ", content.PublishedDate)
	fmt.Println("Words        : ", humanize.Comma(int64(content.WordCount)))
	fmt.Println("Quality      : ", fmt.Sprintf("%.2f", extraction.QualityScore(content)))
	fmt.Println("Took         : ", fmt.Sprintf("%.2fs", content.ExtractionSeconds))

	if cmd.ShowText {
		fmt.Println()
		fmt.Println(content.Text)
	} else if content.Text != "" {
		fmt.Println()
		fmt.Println(truncate(content.Text, 500))
	}
	return nil
}

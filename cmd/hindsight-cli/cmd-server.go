package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/httpclient"
)

type serverScrapeCmd struct {
	ProjectID string `arg:"" help:"project to scrape"`
	Endpoint  string `help:"base URL of the running server" default:"http://localhost:3200"`
}

func (cmd *serverScrapeCmd) Run(_ *globalOptions) error {
	client := httpclient.NewWithCompression(cmd.Endpoint)

	ack, err := client.StartScrape(cmd.ProjectID)
	if errors.Is(err, httpclient.ErrNotFound) {
		return errors.Errorf("project %s is not registered on %s", cmd.ProjectID, cmd.Endpoint)
	}
	if err != nil {
		return err
	}

	fmt.Printf("scrape of project %s %s; the session runs on the server, watch its log for progress\n",
		ack.ProjectID, ack.Status)
	return nil
}

type serverStatusCmd struct {
	Endpoint string `help:"base URL of the running server" default:"http://localhost:3200"`
}

func (cmd *serverStatusCmd) Run(_ *globalOptions) error {
	client := httpclient.New(cmd.Endpoint)

	v, err := client.Version()
	if err != nil {
		return errors.Wrapf(err, "is a hindsight server listening on %s?", cmd.Endpoint)
	}

	fmt.Println("Endpoint : ", cmd.Endpoint)
	fmt.Println("Version  : ", v.Version)
	if err := client.Ready(); err != nil {
		fmt.Println("Ready    :  no")
	} else {
		fmt.Println("Ready    :  yes")
	}

	status, err := client.SourcesStatus()
	if err != nil {
		return err
	}
	fmt.Println("Health   : ", string(status.Health))
	fmt.Println()

	rows := make([][]string, 0, len(status.Sources))
	for _, s := range status.Sources {
		lastSuccess := "never"
		if s.LastSuccess != nil {
			lastSuccess = humanize.Time(*s.LastSuccess)
		}
		rows = append(rows, []string{
			s.Source,
			fmt.Sprintf("%t", s.Healthy),
			fmt.Sprintf("%.1f%%", s.SuccessRate),
			s.AvgResponseTime.Round(time.Millisecond).String(),
			strconv.FormatInt(s.TotalRequests, 10),
			s.BreakerState,
			lastSuccess,
		})
	}
	renderTable([]string{"source", "healthy", "success", "avg latency", "requests", "breaker", "last success"}, rows)

	return nil
}

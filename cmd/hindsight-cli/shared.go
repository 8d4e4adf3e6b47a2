package main

import (
	"os"

	kitlog "github.com/go-kit/log"
	dslog "github.com/grafana/dskit/log"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/hindsightlabs/hindsight/cmd/hindsight/app"
	"github.com/hindsightlabs/hindsight/pkg/util/log"
)

type globalOptions struct {
	ConfigFile string `type:"path" short:"c" help:"hindsight configuration file"`
	LogLevel   string `default:"warn" help:"log verbosity: debug, info, warn, error"`
}

// setup initialises logging and loads the server config the commands reuse:
// defaults first, the file overlaid when one is given.
func (g *globalOptions) setup() (kitlog.Logger, *app.Config, error) {
	var lvl dslog.Level
	if err := lvl.Set(g.LogLevel); err != nil {
		return nil, nil, err
	}
	logger := log.InitLogger("logfmt", lvl)

	cfg := app.NewDefaultConfig()
	if g.ConfigFile != "" {
		buff, err := os.ReadFile(g.ConfigFile)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "reading %s", g.ConfigFile)
		}
		if err := yaml.UnmarshalStrict(buff, cfg); err != nil {
			return nil, nil, errors.Wrapf(err, "parsing %s", g.ConfigFile)
		}
	}

	return logger, cfg, nil
}

func renderTable(header []string, rows [][]string) {
	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader(header)
	w.AppendBulk(rows)
	w.Render()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

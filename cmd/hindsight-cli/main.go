package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/prometheus/common/version"
)

const appName = "hindsight-cli"

// Version is set via build flag -ldflags -X main.Version
var (
	Version  string
	Branch   string
	Revision string
)

func init() {
	version.Version = Version
	version.Branch = Branch
	version.Revision = Revision
}

var cli struct {
	globalOptions

	Query struct {
		Captures queryCapturesCmd `cmd:"" help:"Query the archive chain for every capture of a domain."`
		Pages    queryPagesCmd    `cmd:"" help:"Probe per-source index page counts without fetching captures."`
	} `cmd:"" help:"Query archive indexes."`

	Check struct {
		ListPage checkListPageCmd `cmd:"" name:"list-page" help:"Classify URLs as listing or content pages."`
	} `cmd:"" help:"Run capture filter checks."`

	Extract struct {
		URL extractURLCmd `cmd:"" name:"url" help:"Extract content from one archived URL."`
	} `cmd:"" help:"Run content extraction."`

	Server struct {
		Scrape serverScrapeCmd `cmd:"" help:"Trigger a scrape session on a running hindsight server."`
		Status serverStatusCmd `cmd:"" help:"Show a running server's health and archive source metrics."`
	} `cmd:"" help:"Talk to a running hindsight server."`

	Keys struct {
		Create    keysCreateCmd    `cmd:"" help:"Issue a project's owner key (or its public search key)."`
		Rotate    keysRotateCmd    `cmd:"" help:"Revoke and reissue a project's owner key."`
		Revoke    keysRevokeCmd    `cmd:"" help:"Revoke a project's owner key."`
		List      keysListCmd      `cmd:"" help:"List keys scoped to a project's index."`
		Status    keysStatusCmd    `cmd:"" help:"Show one key by uid."`
		MintToken keysMintTokenCmd `cmd:"" name:"mint-token" help:"Mint a scoped tenant search token."`
		Cleanup   keysCleanupCmd   `cmd:"" help:"Delete expired keys."`
	} `cmd:"" help:"Manage search engine keys."`

	Version versionCmd `cmd:"" help:"Print version information."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name(appName),
		kong.Description("Operator tooling for the hindsight ingestion pipeline."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.globalOptions)
	ctx.FatalIfErrorf(err)
}

type versionCmd struct{}

func (cmd *versionCmd) Run(*globalOptions) error {
	fmt.Println(version.Print(appName))
	return nil
}

package main

import (
	"fmt"

	"github.com/hindsightlabs/hindsight/archive/filter"
)

type checkListPageCmd struct {
	URLs []string `arg:"" help:"urls to classify"`
}

func (cmd *checkListPageCmd) Run(*globalOptions) error {
	lists := 0
	rows := make([][]string, 0, len(cmd.URLs))
	for _, u := range cmd.URLs {
		class := "content"
		if filter.IsListPage(u) {
			class = "list"
			lists++
		}
		rows = append(rows, []string{truncate(u, 100), class})
	}
	renderTable([]string{"url", "class"}, rows)
	fmt.Printf("\n%d of %d urls classified as list pages\n", lists, len(cmd.URLs))
	return nil
}

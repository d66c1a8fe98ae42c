package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/talgya/ascension/internal/ascension"
)

// render prints one chain's grid, highest level first. Each cell shows
// houses and residents; empty cells stay blank.
func render(w io.Writer, dists []ascension.TierDistribution) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	header := append([]string{""}, ascension.LevelHeaders(len(dists))...)
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, d := range ascension.Reversed(dists) {
		row := []string{d.Name}
		for _, c := range d.Dist {
			row = append(row, formatCell(c))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
}

func formatCell(c ascension.Cell) string {
	if !c.Set() || *c.Houses == 0 {
		return ""
	}
	return fmt.Sprintf("%s (%s)", humanize.Commaf(*c.Houses), humanize.Commaf(*c.Pop))
}

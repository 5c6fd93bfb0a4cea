package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
)

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
)

// printReport writes what a harvest run stored, skipped and failed.
func printReport(w io.Writer, r *domain.HarvestReport) {
	if r == nil {
		return
	}
	if r.SourceID != 0 {
		fmt.Fprintf(w, "Source #%d\n", r.SourceID)
	}
	for _, it := range r.Items {
		if it.Skipped {
			fmt.Fprintf(w, "  %s %s %s\n", yellow("skipped"), it.Title, faint("(already harvested)"))
			continue
		}
		fmt.Fprintf(w, "  %s item #%d %s (%d chunks)\n", boldGreen("stored"), it.ItemID, it.Title, it.Chunks)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s %s\n", red("failed"), f.String())
	}
	fmt.Fprintf(w, "\nRun %s: %d stored, %d skipped, %d failed\n",
		r.RunID, r.Stored(), r.Skipped(), len(r.Failures))
}

// printVideos writes a numbered video listing.
func printVideos(w io.Writer, videos []driven.VideoInfo) {
	if len(videos) == 0 {
		fmt.Fprintln(w, "No videos found.")
		return
	}
	for i, v := range videos {
		fmt.Fprintf(w, "[%d] %s\n", i+1, boldCyan(v.Title))
		meta := []string{v.URL}
		if v.ChannelName != "" {
			meta = append(meta, v.ChannelName)
		}
		if v.Duration > 0 {
			meta = append(meta, domain.FormatTimestamp(v.Duration))
		}
		fmt.Fprintf(w, "    %s\n", faint(strings.Join(meta, " | ")))
	}
}

// printAnswer writes an answer followed by its numbered sources.
func printAnswer(w io.Writer, ans *domain.Answer) {
	fmt.Fprintln(w, ans.Text)
	if len(ans.Citations) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", boldCyan("Sources:"))
	for i, c := range ans.Citations {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, formatCitation(c))
	}
}

// printHits writes retrieved chunks without an answer.
func printHits(w io.Writer, hits []domain.SearchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No matching chunks.")
		return
	}
	for i, h := range hits {
		fmt.Fprintf(w, "[%d] %s\n", i+1, formatCitation(domain.CitationFor(h)))
		fmt.Fprintf(w, "    %s\n", faint(preview(h.Chunk.Content, 200)))
	}
}

func formatCitation(c domain.Citation) string {
	line := c.Title
	if c.Locator != "" {
		line += " @ " + c.Locator
	}
	if c.URL != "" {
		line += " " + faint(c.URL)
	}
	return line + fmt.Sprintf(" (%.2f)", c.Similarity)
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

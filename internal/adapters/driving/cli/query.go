package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
)

var (
	querySources      int
	queryKind         string
	queryItem         int64
	queryRetrieveOnly bool
	queryJSON         bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question over the knowledge base",
	Long: `Retrieves the chunks most similar to the question and asks the language
model to answer from them. The answer is followed by the numbered sources it
was given, with timestamps for videos and line ranges for code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	addRetrievalFlags(queryCmd)
	queryCmd.Flags().Int64Var(&queryItem, "item", 0, "only search chunks of this item id")
	queryCmd.Flags().BoolVar(&queryRetrieveOnly, "retrieve-only", false, "print retrieved chunks without asking the model")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	needsServices(queryCmd)
	rootCmd.AddCommand(queryCmd)
}

// addRetrievalFlags registers the flags shared by query and chat.
func addRetrievalFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&querySources, "sources", "s", 0, "number of chunks to retrieve (default from config)")
	cmd.Flags().StringVar(&queryKind, "kind", "", "only search one kind of source: video, code or article")
}

// queryOptions builds retrieval options from the shared flags.
func queryOptions() (driving.QueryOptions, error) {
	opts := driving.QueryOptions{K: querySources}
	if queryKind != "" {
		kind, err := domain.ParseSourceKind(queryKind)
		if err != nil {
			return opts, err
		}
		opts.Filter.SourceKind = kind
	}
	opts.Filter.ItemID = queryItem
	return opts, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	svc, err := requireQuery()
	if err != nil {
		return err
	}
	opts, err := queryOptions()
	if err != nil {
		return err
	}
	question := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if queryRetrieveOnly {
		hits, err := svc.Retrieve(cmd.Context(), question, opts)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		if queryJSON {
			return writeJSON(cmd, hitsJSON(hits))
		}
		printHits(out, hits)
		return nil
	}

	ans, err := svc.Ask(cmd.Context(), question, opts)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if queryJSON {
		return writeJSON(cmd, answerToJSON(ans))
	}
	printAnswer(out, ans)
	return nil
}

type citationJSON struct {
	Number     int     `json:"number"`
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	Locator    string  `json:"locator,omitempty"`
	Similarity float64 `json:"similarity"`
}

type answerJSON struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	NoSources bool           `json:"no_sources"`
	Citations []citationJSON `json:"citations"`
}

func answerToJSON(ans *domain.Answer) answerJSON {
	out := answerJSON{
		Question:  ans.Question,
		Answer:    ans.Text,
		NoSources: ans.NoSources,
		Citations: make([]citationJSON, len(ans.Citations)),
	}
	for i, c := range ans.Citations {
		out.Citations[i] = citationJSON{
			Number:     i + 1,
			Title:      c.Title,
			URL:        c.URL,
			Locator:    c.Locator,
			Similarity: c.Similarity,
		}
	}
	return out
}

type hitJSON struct {
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	Locator    string  `json:"locator,omitempty"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

func hitsJSON(hits []domain.SearchHit) []hitJSON {
	out := make([]hitJSON, len(hits))
	for i, h := range hits {
		c := domain.CitationFor(h)
		out[i] = hitJSON{
			Title:      c.Title,
			URL:        c.URL,
			Locator:    c.Locator,
			Similarity: c.Similarity,
			Content:    h.Chunk.Content,
		}
	}
	return out
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

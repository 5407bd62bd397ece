package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"TrackHound/config"
	"TrackHound/logger"
	"TrackHound/model"
)

var (
	searchLimit    int
	searchSources  []string
	searchStrategy string
	searchJSON     bool
	searchNoCache  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one search from the command line",
	Long: `Runs a single aggregated search and prints the ranked results.
Backing services that are down are skipped: without MySQL there is no
history, without Redis the cache is process-local.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogging(cfg)
		defer logger.Sync()

		rt, err := buildRuntime(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer rt.close()

		req := model.SearchRequest{
			Query:    strings.Join(args, " "),
			Limit:    searchLimit,
			Strategy: model.ParseStrategy(searchStrategy),
			UseCache: !searchNoCache,
		}
		for _, s := range searchSources {
			req.Sources = append(req.Sources, model.TrackSource(s))
		}

		resp, err := rt.engine.Search(cmd.Context(), req)
		if err != nil {
			return err
		}

		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		if len(resp.Results) == 0 {
			fmt.Println("no results")
			if len(resp.Suggestions) > 0 {
				fmt.Printf("did you mean: %s\n", strings.Join(resp.Suggestions, ", "))
			}
			return nil
		}

		if resp.CorrectedQuery != "" {
			fmt.Printf("corrected to %q\n", resp.CorrectedQuery)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTITLE\tARTIST\tDURATION\tQUALITY\tSOURCE")
		for i, res := range resp.Results {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				i+1, res.Title, res.Artist, formatDuration(res.Duration), res.Quality, res.Source)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d of %d results, %d source(s), %dms",
			len(resp.Results), resp.TotalFound, len(resp.SourcesUsed), resp.ElapsedMs)
		if resp.Cached {
			fmt.Print(" (cached)")
		}
		fmt.Println()
		return nil
	},
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "maximum results to print")
	searchCmd.Flags().StringSliceVarP(&searchSources, "sources", "s", nil, "restrict to these sources (vk_audio, youtube, spotify)")
	searchCmd.Flags().StringVar(&searchStrategy, "strategy", "", "fastest, comprehensive, sequential or quality_first")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the raw JSON response")
	searchCmd.Flags().BoolVar(&searchNoCache, "no-cache", false, "bypass the search cache")
}

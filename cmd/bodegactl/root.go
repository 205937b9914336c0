package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samirrijal/bodegamap/internal/adapters/searchapi"
	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/explorer"
	"github.com/samirrijal/bodegamap/internal/pkg/config"
)

type options struct {
	api      string
	asJSON   bool
	text     string
	typ      string
	lat, lng float64
	radius   float64
	category string
	tag      string
	friendly string
	verified string
	rating   [2]float64
	count    [2]float64
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "bodegactl",
		Short: "Search bodegas and their cats from the command line.",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.api != "" {
				return nil
			}
			cfg, err := config.Load(config.ServiceCLI)
			if err != nil {
				return err
			}
			opts.api = cfg.Search.BaseURL
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.api, "api", "", "search service base URL (default from search.base_url)")
	cmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")

	cmd.AddCommand(newSearchCmd(opts), newComposeCmd(opts), newFiltersCmd(opts))
	return cmd
}

// queryFlags registers the flags a query is composed from.
func queryFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.StringVarP(&opts.text, "query", "q", "", "free text")
	f.StringVarP(&opts.typ, "type", "t", string(domain.EntityItems), "entity type: sites or items")
	f.Float64Var(&opts.lat, "lat", 0, "latitude of the search center")
	f.Float64Var(&opts.lng, "lng", 0, "longitude of the search center")
	f.Float64Var(&opts.radius, "radius", domain.DefaultRadiusKm, "search radius in km, used with --lat/--lng")
	f.StringVar(&opts.category, "category", "", "item category (breed)")
	f.StringVar(&opts.tag, "tag", "", "item tag (personality)")
	f.StringVar(&opts.friendly, "friendly", "", "only friendly items: yes or no")
	f.StringVar(&opts.verified, "verified", "", "only verified sites: yes or no")
	f.Float64Var(&opts.rating[0], "min-rating", 0, "minimum rating")
	f.Float64Var(&opts.rating[1], "max-rating", 0, "maximum rating")
	f.Float64Var(&opts.count[0], "min-count", 0, "minimum items per site")
	f.Float64Var(&opts.count[1], "max-count", 0, "maximum items per site")
}

func (o *options) compose(cmd *cobra.Command) (domain.SearchQuery, error) {
	in := explorer.Input{
		FreeText:   o.text,
		EntityType: domain.EntityType(o.typ),
		RadiusKm:   o.radius,
		Filters: domain.FilterSet{
			Category: o.category,
			Tag:      o.tag,
			Friendly: triState(o.friendly),
			Verified: triState(o.verified),
			Rating:   bounds(cmd, "min-rating", "max-rating", o.rating),
			Count:    bounds(cmd, "min-count", "max-count", o.count),
		},
	}
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
		in.Position = &domain.GeoPosition{Lat: o.lat, Lng: o.lng}
	}
	return explorer.Compose(in)
}

// bounds turns a pair of flags into a Range; a flag left unset is an absent bound.
func bounds(cmd *cobra.Command, minFlag, maxFlag string, b [2]float64) domain.Range {
	lo, hi := cmd.Flags().Changed(minFlag), cmd.Flags().Changed(maxFlag)
	switch {
	case lo && hi:
		return domain.Between(b[0], b[1])
	case lo:
		return domain.AtLeast(b[0])
	case hi:
		return domain.AtMost(b[1])
	}
	return domain.Range{}
}

func triState(v string) domain.TriState {
	switch strings.ToLower(v) {
	case "yes", "true", "1":
		return domain.Yes
	case "no", "false", "0":
		return domain.No
	}
	return domain.Any
}

func (o *options) client() (*searchapi.Client, error) {
	return searchapi.New(o.api, searchapi.Options{})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mmcdole/portal/internal/domain"
	"github.com/mmcdole/portal/internal/library"
	"github.com/mmcdole/portal/internal/tui/styles"
)

// detailView is a record with its resolved relations
type detailView struct {
	Item    domain.Item              `json:"item"`
	Related map[string][]domain.Item `json:"related,omitempty"`
}

func newShowCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <character|location|episode> <id>",
		Short: "Show one record with its related records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.Atoi(args[1])
			if err != nil || id < 1 {
				return fmt.Errorf("invalid id %q", args[1])
			}
			if err := validateFormat(output); err != nil {
				return err
			}

			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				view, err := loadDetail(ctx, a.catalog.Details, kind, id)
				if err != nil {
					return err
				}
				if output != formatTable {
					return writeValue(cmd.OutOrStdout(), output, view)
				}
				return writeDetail(cmd.OutOrStdout(), view)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

// loadDetail fetches a record and waits for every relation lookup
func loadDetail(ctx context.Context, svc *library.DetailService, kind domain.Kind, id int) (detailView, error) {
	view := detailView{Related: make(map[string][]domain.Item)}
	onPatch := func(p library.Patch) {
		for _, c := range p.Characters {
			view.Related[p.Relation] = append(view.Related[p.Relation], c)
		}
		for _, l := range p.Locations {
			view.Related[p.Relation] = append(view.Related[p.Relation], l)
		}
		for _, e := range p.Episodes {
			view.Related[p.Relation] = append(view.Related[p.Relation], e)
		}
	}

	switch kind {
	case domain.KindCharacter:
		c, err := svc.Character(ctx, id)
		if err != nil {
			return view, err
		}
		view.Item = c
		svc.EnrichCharacter(ctx, c, onPatch)
	case domain.KindLocation:
		l, err := svc.Location(ctx, id)
		if err != nil {
			return view, err
		}
		view.Item = l
		svc.EnrichLocation(ctx, l, onPatch)
	default:
		e, err := svc.Episode(ctx, id)
		if err != nil {
			return view, err
		}
		view.Item = e
		svc.EnrichEpisode(ctx, e, onPatch)
	}

	for _, items := range view.Related {
		sort.SliceStable(items, func(i, j int) bool { return items[i].GetID() < items[j].GetID() })
	}
	return view, nil
}

func writeDetail(w io.Writer, view detailView) error {
	var b strings.Builder

	b.WriteString(styles.TitleStyle.Render(itemName(view.Item)) + "\n")
	if desc := view.Item.GetDescription(); desc != "" {
		b.WriteString(styles.DimStyle.Render(desc) + "\n")
	}
	b.WriteString("\n")

	switch v := view.Item.(type) {
	case *domain.Character:
		writePlace(&b, "Origin", v.Origin, view.Related[library.RelationOrigin])
		writePlace(&b, "Last seen", v.Location, view.Related[library.RelationLocation])
		writeRelation(&b, "Episodes", len(v.EpisodeURLs), view.Related[library.RelationEpisodes])
		writeMeta(&b, v.ID, v.URL, v.Created.IsZero(), humanize.Time(v.Created))
	case *domain.Location:
		writeRelation(&b, "Residents", len(v.ResidentURLs), view.Related[library.RelationResidents])
		writeMeta(&b, v.ID, v.URL, v.Created.IsZero(), humanize.Time(v.Created))
	case *domain.Episode:
		b.WriteString(fmt.Sprintf("Aired %s\n", v.AirDate))
		writeRelation(&b, "Characters", len(v.CharacterURLs), view.Related[library.RelationCharacters])
		writeMeta(&b, v.ID, v.URL, v.Created.IsZero(), humanize.Time(v.Created))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writePlace(b *strings.Builder, label string, ref domain.NamedRef, resolved []domain.Item) {
	name := ref.Name
	if name == "" {
		name = "unknown"
	}
	b.WriteString(styles.SubtitleStyle.Render(label+": ") + name)
	if len(resolved) > 0 && resolved[0].GetDescription() != "" {
		b.WriteString(styles.DimStyle.Render(" (" + resolved[0].GetDescription() + ")"))
	}
	b.WriteString("\n")
}

func writeRelation(b *strings.Builder, label string, total int, resolved []domain.Item) {
	b.WriteString("\n" + styles.SubtitleStyle.Render(fmt.Sprintf("%s (%d)", label, total)) + "\n")
	for _, item := range resolved {
		b.WriteString("  " + itemName(item) + "\n")
	}
	if missing := total - len(resolved); missing > 0 {
		b.WriteString(styles.DimStyle.Render(fmt.Sprintf("  %d not resolved", missing)) + "\n")
	}
}

func writeMeta(b *strings.Builder, id int, url string, noCreated bool, created string) {
	meta := fmt.Sprintf("#%d", id)
	if !noCreated {
		meta += " · created " + created
	}
	b.WriteString("\n" + styles.DimStyle.Render(meta) + "\n")
	if url != "" {
		b.WriteString(styles.DimStyle.Render(url) + "\n")
	}
}

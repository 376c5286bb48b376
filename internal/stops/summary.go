package stops

import (
	"sort"
	"strconv"

	"github.com/transportforbandung/transitmap/internal/catalog"
)

// BadgeColor is the badge background of routes without a catalog color.
const BadgeColor = "#CCCCCC"

// unlistedOrder places routes missing from the catalog after every category.
const unlistedOrder = 9999

// RouteRef is a route serving a stop, as shown in the stop popup.
type RouteRef struct {
	RelationID  string `json:"relationId"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	TextColor   string `json:"textColor"`
	Destination string `json:"destination"`
	Listed      bool   `json:"listed"`
}

// RouteGroup is the routes of one catalog category.
type RouteGroup struct {
	Category string     `json:"category"`
	Routes   []RouteRef `json:"routes"`
}

// Summary describes a stop and the routes serving it.
type Summary struct {
	Stop
	Groups     []RouteGroup `json:"groups"`
	RouteCount int          `json:"routeCount"`
	HasShelter bool         `json:"hasShelter"`
}

// Summarize groups the routes serving s by catalog category, categories and
// routes in catalog order. Relations missing from the catalog are listed under
// catalog.UncategorizedName, last.
func Summarize(s Stop, c *catalog.Catalog) Summary {
	type ranked struct {
		ref           RouteRef
		category      string
		categoryOrder int
		routeOrder    int
	}

	rows := make([]ranked, 0, len(s.Routes))
	seen := make(map[int64]bool, len(s.Routes))
	for pos, rid := range s.Routes {
		if seen[rid] {
			continue
		}
		seen[rid] = true

		id := strconv.FormatInt(rid, 10)
		entry, ok := catalog.Entry{}, false
		if c != nil {
			entry, ok = c.Lookup(id)
		}
		if !ok {
			rows = append(rows, ranked{
				ref: RouteRef{
					RelationID:  id,
					Name:        "Rute " + id,
					Color:       BadgeColor,
					TextColor:   catalog.ContrastColor(BadgeColor),
					Destination: "Rute " + id,
				},
				category:      catalog.UncategorizedName,
				categoryOrder: unlistedOrder,
				routeOrder:    pos,
			})
			continue
		}

		color := entry.Color
		if color == "" {
			color = BadgeColor
		}
		rows = append(rows, ranked{
			ref: RouteRef{
				RelationID:  id,
				Name:        entry.Name,
				Color:       color,
				TextColor:   catalog.ContrastColor(color),
				Destination: catalog.Destination(entry.Name),
				Listed:      true,
			},
			category:      entry.CategoryName,
			categoryOrder: entry.CategoryOrder,
			routeOrder:    entry.RouteOrder,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].categoryOrder != rows[j].categoryOrder {
			return rows[i].categoryOrder < rows[j].categoryOrder
		}
		return rows[i].routeOrder < rows[j].routeOrder
	})

	groups := []RouteGroup{}
	for _, r := range rows {
		if n := len(groups); n > 0 && groups[n-1].Category == r.category {
			groups[n-1].Routes = append(groups[n-1].Routes, r.ref)
			continue
		}
		groups = append(groups, RouteGroup{Category: r.category, Routes: []RouteRef{r.ref}})
	}

	return Summary{
		Stop:       s,
		Groups:     groups,
		RouteCount: len(rows),
		HasShelter: s.HasShelter(),
	}
}

package overpass

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/geo"
)

// Stop roles on a PTv2 route relation.
const (
	RoleStop          = "stop"
	RoleStopEntryOnly = "stop_entry_only"
	RoleStopExitOnly  = "stop_exit_only"
)

// StopRoles lists the member roles fetched for a display type. Routes shown
// as plain lines only carry their boarding-only and alighting-only stops.
func StopRoles(t catalog.DisplayType) []string {
	if t == catalog.WaysWithPoints {
		return []string{RoleStop, RoleStopEntryOnly, RoleStopExitOnly}
	}
	return []string{RoleStopEntryOnly, RoleStopExitOnly}
}

// WaysQuery selects every way of a relation with its geometry.
func WaysQuery(relationID string) string {
	return fmt.Sprintf("[out:json]; relation(%s); way(r); out geom;", relationID)
}

// StopsQuery selects the stop nodes of a relation, one output block per role.
func StopsQuery(relationID string, t catalog.DisplayType) string {
	var b strings.Builder
	b.WriteString("[out:json];")
	for _, role := range StopRoles(t) {
		fmt.Fprintf(&b, "relation(%s);node(r:%q);out geom;", relationID, role)
	}
	return b.String()
}

// RouteQuery fetches ways and stops of a relation in a single request.
func RouteQuery(relationID string, t catalog.DisplayType) string {
	roles := StopRoles(t)
	sel := make([]string, len(roles))
	for i, role := range roles {
		sel[i] = fmt.Sprintf("node(r.rel:%q)", role)
	}

	return fmt.Sprintf("[out:json];relation(%s)->.rel;way(r.rel);out geom;(%s;);out geom;",
		relationID, strings.Join(sel, ";"))
}

// StopCensusQuery selects bus stop nodes matching filter inside bbox.
// The filter uses "{bbox}" as placeholder for the bounding box.
func StopCensusQuery(filter string, bbox geo.BBox) string {
	return "[out:json][timeout:90];\n" +
		strings.ReplaceAll(filter, "{bbox}", bbox.String()) + "\n" +
		"out body geom;"
}

// RelationsForNodeQuery selects the ids of bus route relations containing a node.
func RelationsForNodeQuery(nodeID int64) string {
	return "[out:json][timeout:20];node(" + strconv.FormatInt(nodeID, 10) +
		`)->.stop;relation(bn.stop)["type"="route"]["route"="bus"];out ids;`
}

// Package stops classifies bus stops by shelter and pole, and answers the
// map's stop queries from the census file.
package stops

import "sort"

// Census file names.
const (
	AllStopsFile = "all_bus_stops.geojson"
	FileSuffix   = ".geojson"
)

// DefaultFilters partitions bus_stop nodes by shelter and pole tagging.
// Keys sort in display order; "{bbox}" is replaced by the census area.
var DefaultFilters = map[string]string{
	"1_shelter_yes_pole_none":   `(node["highway"="bus_stop"]["shelter"="yes"][!"pole"]({bbox});)`,
	"2_shelter_none_pole_sign":  `(node["highway"="bus_stop"][!"shelter"]["pole"~"^(yes|traffic_sign)$"]({bbox});)`,
	"3_shelter_none_pole_totem": `(node["highway"="bus_stop"][!"shelter"]["pole"~"^(totem|totem;traffic_sign|traffic_sign;totem)$"]({bbox});)`,
	"4_shelter_none_pole_flag":  `(node["highway"="bus_stop"][!"shelter"]["pole"~"^(flag|flag;traffic_sign|traffic_sign;flag)$"]({bbox});)`,
	"5_shelter_yes_pole_sign":   `(node["highway"="bus_stop"]["shelter"="yes"]["pole"~"^(yes|traffic_sign)$"]({bbox});)`,
	"6_shelter_yes_pole_totem":  `(node["highway"="bus_stop"]["shelter"="yes"]["pole"~"^(totem|totem;traffic_sign|traffic_sign;totem)$"]({bbox});)`,
	"7_shelter_yes_pole_flag":   `(node["highway"="bus_stop"]["shelter"="yes"]["pole"~"^(flag|flag;traffic_sign|traffic_sign;flag)$"]({bbox});)`,
	"8_shelter_none_pole_none":  `(node["highway"="bus_stop"][!"shelter"][!"pole"]({bbox});)`,
}

// DefaultCategory is assumed for stops whose census category is unknown.
const DefaultCategory = "8_shelter_none_pole_none"

// Names returns the filter names sorted.
func Names(filters map[string]string) []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

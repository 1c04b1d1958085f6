package models

// MapOption is a single entry of the contest map catalogue.
type MapOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// MapPool is the fixed, ordered catalogue of maps available for vetos.
// The order here is the order bans are rendered in.
var MapPool = []MapOption{
	{Code: "de_mirage", Label: "Mirage"},
	{Code: "de_dust2", Label: "Dust2"},
	{Code: "de_ancient", Label: "Ancient"},
	{Code: "de_train", Label: "Train"},
	{Code: "de_nuke", Label: "Nuke"},
	{Code: "de_inferno", Label: "Inferno"},
	{Code: "de_overpass", Label: "Overpass"},
}

// MapPoolContains reports whether code belongs to the pool.
func MapPoolContains(code string) bool {
	for _, m := range MapPool {
		if m.Code == code {
			return true
		}
	}
	return false
}

// MapLabel returns the display name for a map code, falling back to the code itself.
func MapLabel(code string) string {
	for _, m := range MapPool {
		if m.Code == code {
			return m.Label
		}
	}
	return code
}

// AvailableMapCodes returns the pool minus every code present in bans,
// preserving pool order.
func AvailableMapCodes(bans []*MapBan) []string {
	banned := make(map[string]struct{}, len(bans))
	for _, b := range bans {
		banned[b.MapCode] = struct{}{}
	}
	codes := make([]string, 0, len(MapPool))
	for _, m := range MapPool {
		if _, ok := banned[m.Code]; !ok {
			codes = append(codes, m.Code)
		}
	}
	return codes
}

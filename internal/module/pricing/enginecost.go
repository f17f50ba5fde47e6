package pricing

import "sort"

// defaultEngineCost applies to supported engines without an explicit entry.
const defaultEngineCost int64 = 1

// engineCosts is the per-engine credit cost table. It is the single lookup
// used both by the pricing quote endpoint and by the gateway's commit step so
// the quoted cost and the charged cost cannot diverge.
var engineCosts = map[string]int64{
	"google":     1,
	"duckduckgo": 2,
	"brave":      2,
	"startpage":  1,
	"mojeek":     1,
	"yahoo":      1,
	"yep":        1,
	"searx":      1,
	"qwant":      1,
}

// SupportedEngines returns the sorted names of all supported engines.
func SupportedEngines() []string {
	names := make([]string, 0, len(engineCosts))
	for name := range engineCosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupportedEngine reports whether the engine name is in the supported set.
func IsSupportedEngine(name string) bool {
	_, ok := engineCosts[name]
	return ok
}

// EngineCost returns the credit cost of a single engine.
func EngineCost(name string) int64 {
	if cost, ok := engineCosts[name]; ok {
		return cost
	}
	return defaultEngineCost
}

// EngineCosts returns a copy of the engine cost table.
func EngineCosts() map[string]int64 {
	out := make(map[string]int64, len(engineCosts))
	for k, v := range engineCosts {
		out[k] = v
	}
	return out
}

// CostForEngines returns the credit cost of a search across the given
// engines. A search with no explicit engine selection costs one credit.
func CostForEngines(engines []string) int64 {
	if len(engines) == 0 {
		return defaultEngineCost
	}
	var total int64
	for _, e := range engines {
		total += EngineCost(e)
	}
	return total
}

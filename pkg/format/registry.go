package format

// byName is the closed set of adapters this package ships, keyed by
// their wire name. Mirrors the fixed, lookup-by-name shape of
// integration.Registry, but needs no explicit construction since the
// set of syntaxes is closed and known at compile time.
var byName = map[string]Adapter{
	YAMLName: YAML{},
	JSONName: JSON{},
	TOMLName: TOML{},
}

// AdapterByName looks up an Adapter by its wire name ("yaml", "json",
// "toml"), for callers that select a syntax from a file extension or a
// flag rather than holding a concrete Adapter value. (cmd/cryptconf
// handles YAML only and uses format.YAML directly.)
func AdapterByName(name string) (Adapter, bool) {
	a, ok := byName[name]
	return a, ok
}

package collection

// Facet is a trait name with the distinct values observed for it.
type Facet struct {
	Trait  string
	Values []string
}

// Facets lists facets in order of first trait appearance.
type Facets []Facet

// Values returns the observed values for a trait, or nil.
func (fs Facets) Values(trait string) []string {
	for _, f := range fs {
		if f.Trait == trait {
			return f.Values
		}
	}
	return nil
}

// Map returns the facets keyed by trait name.
func (fs Facets) Map() map[string][]string {
	out := make(map[string][]string, len(fs))
	for _, f := range fs {
		out[f.Trait] = f.Values
	}
	return out
}

// DeriveFacets collects, for every trait name seen in items, the distinct
// values in order of first appearance. It is recomputed on every call.
func DeriveFacets(items []Item) Facets {
	var facets Facets
	index := make(map[string]int)
	seen := make(map[string]map[string]struct{})

	for _, it := range items {
		for _, t := range it.Traits {
			i, ok := index[t.Name]
			if !ok {
				i = len(facets)
				index[t.Name] = i
				seen[t.Name] = make(map[string]struct{})
				facets = append(facets, Facet{Trait: t.Name})
			}
			if _, dup := seen[t.Name][t.Value]; dup {
				continue
			}
			seen[t.Name][t.Value] = struct{}{}
			facets[i].Values = append(facets[i].Values, t.Value)
		}
	}
	return facets
}

package model

// PrivateData is one finding extracted from request content by the
// classifier: a (category, key, value) triple plus the analysis source tag,
// the model that produced it and the number of raw occurrences collapsed
// into it.
type PrivateData struct {
	Category string
	Key      string
	Value    string
	Source   string
	Model    string
	Count    int
}

// SameValue reports equality of everything except Count. Two findings that
// are SameValue are occurrences of the same extraction.
func (d PrivateData) SameValue(other PrivateData) bool {
	return d.Category == other.Category &&
		d.Key == other.Key &&
		d.Value == other.Value &&
		d.Source == other.Source &&
		d.Model == other.Model
}

// Equal reports full equality including Count.
func (d PrivateData) Equal(other PrivateData) bool {
	return d.SameValue(other) && d.Count == other.Count
}

// signature is the SameValue identity of a finding, used as a map key.
type signature struct {
	category, key, value, source, model string
}

func (d PrivateData) signature() signature {
	return signature{d.Category, d.Key, d.Value, d.Source, d.Model}
}

// Deduplicate collapses repeated findings into one entry per distinct
// SameValue tuple. Each output Count is the total multiplicity of that tuple
// in the input, where an input element contributes max(Count, 1). Raw
// classifier output always carries Count 1, so for raw lists the output
// counts sum to the input length; running Deduplicate on its own output is a
// fixed point. Output preserves first-seen order. An empty input yields an
// empty, non-nil slice.
func Deduplicate(findings []PrivateData) []PrivateData {
	counts := make(map[signature]int, len(findings))
	order := make([]signature, 0, len(findings))

	for _, f := range findings {
		sig := f.signature()
		n := f.Count
		if n < 1 {
			n = 1
		}
		if _, seen := counts[sig]; !seen {
			order = append(order, sig)
		}
		counts[sig] += n
	}

	out := make([]PrivateData, 0, len(order))
	for _, sig := range order {
		out = append(out, PrivateData{
			Category: sig.category,
			Key:      sig.key,
			Value:    sig.value,
			Source:   sig.source,
			Model:    sig.model,
			Count:    counts[sig],
		})
	}
	return out
}

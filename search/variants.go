package search

import "strings"

// variantGroups maps the spellings users type for common substances to FTS
// prefix queries.
var variantGroups = []struct {
	names    []string
	variants []string
}{
	{[]string{"cannabis", "marihuana", "mariguana"}, []string{"cannab*", "marihuan*", "mariguan*", "thc", "tetrahidrocannabinol"}},
	{[]string{"cocaína", "cocaina", "cocaine"}, []string{"cocain*", "cocaín*", "crack"}},
	{[]string{"alcohol", "etanol"}, []string{"alcohol", "etanol", "bebidas alcoh*"}},
	{[]string{"opioides", "opiaceos", "opiáceos"}, []string{"opioid*", "opiace*", "morfina", "heroina", "fentanil*"}},
	{[]string{"anfetaminas", "estimulantes"}, []string{"anfetamin*", "metanfetamin*", "estimulant*"}},
}

// Variants returns the search variants of term. Unknown terms of four or
// more characters become a prefix query.
func Variants(term string) []string {
	t := strings.ToLower(strings.TrimSpace(term))
	for _, g := range variantGroups {
		for _, n := range g.names {
			if n == t {
				return append([]string(nil), g.variants...)
			}
		}
	}
	if len([]rune(t)) >= 4 {
		return []string{t + "*"}
	}
	return []string{t}
}

// ExpandQuery joins the variants of term into one FTS5 OR query.
func ExpandQuery(term string) string {
	vs := Variants(term)
	for i, v := range vs {
		if strings.Contains(v, " ") {
			vs[i] = "(" + v + ")"
		}
	}
	return strings.Join(vs, " OR ")
}

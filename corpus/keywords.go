package corpus

import "strings"

// Keyword maps a surface form to the ICD-10 root it signals.
type Keyword struct {
	Term string
	Code string
}

// Keywords is the substance lexicon in match priority order. Accented and
// unaccented spellings are both listed because matching is literal.
var Keywords = []Keyword{
	{"alcohol", "F10"},
	{"etílico", "F10"},
	{"etilico", "F10"},
	{"bebidas alcohólicas", "F10"},
	{"bebida alcohólica", "F10"},
	{"alcohólico", "F10"},
	{"alcoholico", "F10"},
	{"cocaína", "F14"},
	{"cocaina", "F14"},
	{"crack", "F14"},
	{"opioides", "F11"},
	{"morfina", "F11"},
	{"heroína", "F11"},
	{"heroina", "F11"},
	{"fentanilo", "F11"},
	{"cannabis", "F12"},
	{"marihuana", "F12"},
	{"thc", "F12"},
	{"sedantes", "F13"},
	{"benzodiacepinas", "F13"},
	{"clonazepam", "F13"},
	{"diazepam", "F13"},
	{"hipnóticos", "F13"},
	{"hipnoticos", "F13"},
	{"anfetamina", "F15"},
	{"anfetaminas", "F15"},
	{"metanfetamina", "F15"},
	{"metanfetaminas", "F15"},
	{"mdma", "F15"},
	{"éxtasis", "F15"},
	{"extasis", "F15"},
	{"tabaco", "F17"},
	{"nicotina", "F17"},
	{"cigarrillo", "F17"},
	{"solventes", "F18"},
	{"inhalables", "F18"},
	{"thinner", "F18"},
	{"alucinógenos", "F16"},
	{"alucinogenos", "F16"},
	{"lsd", "F16"},
	{"psilocibina", "F16"},
	{"peyote", "F16"},
	{"mezcla de sustancias", "F19"},
	{"poli consumo", "F19"},
	{"policonsumo", "F19"},
	{"múltiples sustancias", "F19"},
	{"multiples sustancias", "F19"},
}

// FindMentions returns the keywords found in sentence (case-insensitive
// substring match), at most one per code: the first in lexicon order.
func FindMentions(sentence string, lexicon []Keyword) []Keyword {
	low := strings.ToLower(sentence)
	seen := make(map[string]bool)
	var hits []Keyword
	for _, k := range lexicon {
		if seen[k.Code] || !strings.Contains(low, k.Term) {
			continue
		}
		seen[k.Code] = true
		hits = append(hits, k)
	}
	return hits
}

// CodesForTerm returns the codes whose lexicon terms contain term or are
// contained in it, in lexicon order.
func CodesForTerm(term string, lexicon []Keyword) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}
	seen := make(map[string]bool)
	var codes []string
	for _, k := range lexicon {
		if seen[k.Code] {
			continue
		}
		if strings.Contains(k.Term, term) || strings.Contains(term, k.Term) {
			seen[k.Code] = true
			codes = append(codes, k.Code)
		}
	}
	return codes
}

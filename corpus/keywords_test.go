package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindMentions(t *testing.T) {
	hits := FindMentions("El ALCOHOL etílico y la cocaína, con tabaco y alcohólicos", Keywords)

	var terms, codes []string
	for _, h := range hits {
		terms = append(terms, h.Term)
		codes = append(codes, h.Code)
	}
	assert.Equal(t, []string{"alcohol", "cocaína", "tabaco"}, terms, "first term per code in lexicon order")
	assert.Equal(t, []string{"F10", "F14", "F17"}, codes)

	assert.Empty(t, FindMentions("Sin menciones relevantes", Keywords))
}

func TestCodesForTerm(t *testing.T) {
	assert.Equal(t, []string{"F12"}, CodesForTerm("Marihuana", Keywords))
	assert.Equal(t, []string{"F15"}, CodesForTerm("anfetamina", Keywords))
	assert.Equal(t, []string{"F10"}, CodesForTerm("consumo de alcohol", Keywords))
	assert.Nil(t, CodesForTerm("  ", Keywords))
	assert.Nil(t, CodesForTerm("xyz", Keywords))
}

func TestTokenize(t *testing.T) {
	got := Tokenize("El consumo de Alcohol, y la dependencia... ¡también!")
	assert.Equal(t, []string{"consumo", "alcohol", "dependencia"}, got)
	assert.Nil(t, Tokenize(""))
}

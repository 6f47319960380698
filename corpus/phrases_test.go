package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saludfederada/config"
)

// writeMatchesCSV creates a keyword-match table with a repeated position, a
// phrase seen in two documents, a multi-substance sentence, a code outside
// F10–F19 and an empty sentence.
func writeMatchesCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matches.csv")
	content := `doc_id,sent_id,sentence,keyword,cie10
0,0,"El alcohol, mata.",alcohol,F10
0,0,"El alcohol, mata.",alcohol,F10
1,0,el alcohol mata,alcohol,f10
1,1,Texto con cocaína y tabaco,cocaína,F14
1,1,Texto con cocaína y tabaco,tabaco,F17
2,0,Depresión,x,F32
2,1,,alcohol,F10
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write matches CSV: %v", err)
	}
	return path
}

func TestBuildCatalog(t *testing.T) {
	syn := config.Default().Synonyms
	mentions, err := ReadMentions(writeMatchesCSV(t), syn)
	require.NoError(t, err)
	require.Len(t, mentions, 7)

	phrases, links, st := BuildCatalog(mentions)

	assert.Equal(t, PhraseStats{Rows: 7, Empty: 1, OutOfRange: 1, DupPositions: 4, Phrases: 2, Links: 3}, st)

	require.Len(t, phrases, 2)
	assert.Equal(t, "F10", phrases[0].Code)
	assert.Equal(t, "El alcohol, mata.", phrases[0].SentenceRaw, "first raw form is kept")
	assert.Equal(t, "el alcohol mata", phrases[0].SentenceNorm)
	assert.Equal(t, 2, phrases[0].Occurrences)
	assert.Equal(t, PhraseHash("F10", "el alcohol mata"), phrases[0].Hash)
	assert.Equal(t, "F14", phrases[1].Code, "first code at a shared position wins")
	assert.Equal(t, "texto con cocaina y tabaco", phrases[1].SentenceNorm)

	assert.Equal(t, []PhraseDoc{
		{Hash: phrases[0].Hash, DocID: 0, SentID: 0},
		{Hash: phrases[0].Hash, DocID: 1, SentID: 0},
		{Hash: phrases[1].Hash, DocID: 1, SentID: 1},
	}, links)

	again, _, _ := BuildCatalog(mentions)
	assert.Equal(t, phrases, again)
}

func TestPhraseHash(t *testing.T) {
	h := PhraseHash("F10", "el alcohol mata")
	assert.Len(t, h, 40)
	assert.NotEqual(t, h, PhraseHash("F11", "el alcohol mata"))
}

func TestReadMentionsWithoutPositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frases.csv")
	content := "frase,cie10_code\nUno,F10\nDos,F12\nTres,F10\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	mentions, err := ReadMentions(path, config.Default().Synonyms)
	require.NoError(t, err)
	require.Len(t, mentions, 3)
	for i, m := range mentions {
		assert.Equal(t, int64(0), m.DocID)
		assert.Equal(t, int64(i), m.SentID)
	}
}

func TestReadMentionsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("doc_id,otra\n1,x\n"), 0644))

	_, err := ReadMentions(path, config.Default().Synonyms)
	assert.True(t, errors.Is(err, ErrMissingColumns), "err = %v", err)
}

func TestCleanPhrases(t *testing.T) {
	dir := t.TempDir()
	phrasesOut := filepath.Join(dir, "frases.csv")
	linksOut := filepath.Join(dir, "frases_x_docs.csv")
	logPath := filepath.Join(dir, "docs", "limpieza_textos.md")

	st, err := CleanPhrases(writeMatchesCSV(t), phrasesOut, linksOut, logPath, config.Default().Synonyms)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Phrases)

	data, err := os.ReadFile(phrasesOut)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(PhraseHeader, ","), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], `,F10,"El alcohol, mata.",el alcohol mata,2`), lines[1])

	data, err = os.ReadFile(linksOut)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 4)

	log, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(log), "- fuera_de_rango (previas): 1")
	assert.Contains(t, string(log), "- Frases únicas finales: 2")
	assert.Contains(t, string(log), "- Duplicados técnicos (doc_id, sent_id): 4")
}

func TestBuildCatalogTwoCodesSamePosition(t *testing.T) {
	mentions := []Mention{
		{DocID: 0, SentID: 0, Code: "F10", Sentence: "Alcohol y marihuana."},
		{DocID: 0, SentID: 0, Code: "F12", Sentence: "Alcohol y marihuana."},
	}
	phrases, links, st := BuildCatalog(mentions)

	assert.Equal(t, 2, st.DupPositions)
	assert.Equal(t, 1, st.Links)
	require.Len(t, phrases, 1)
	assert.Equal(t, "F10", phrases[0].Code)
	assert.Equal(t, 1, phrases[0].Occurrences)
	assert.Equal(t, []PhraseDoc{{Hash: phrases[0].Hash, DocID: 0, SentID: 0}}, links)
}

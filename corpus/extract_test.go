package corpus

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpusText(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cowese.txt")
	content := "El consumo de alcohol aumentó. La cocaína y el tabaco también.\n" +
		"Otra línea sin punto\n" +
		"\n" +
		"Segundo párrafo: Marihuana en jóvenes.\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	return path
}

func TestExtract(t *testing.T) {
	in := writeCorpusText(t)
	out := filepath.Join(t.TempDir(), "textos")

	st, err := Extract(in, out, 0, Keywords)
	require.NoError(t, err)
	assert.Equal(t, ExtractStats{Sentences: 4, Matches: 4}, st)

	matches, err := os.ReadFile(filepath.Join(out, MatchesFile))
	require.NoError(t, err)
	want := "doc_id,sent_id,sentence,keyword,cie10\n" +
		"0,0,El consumo de alcohol aumentó.,alcohol,F10\n" +
		"0,1,La cocaína y el tabaco también.,cocaína,F14\n" +
		"0,1,La cocaína y el tabaco también.,tabaco,F17\n" +
		"0,3,Marihuana en jóvenes.,marihuana,F12\n"
	assert.Equal(t, want, string(matches))
}

func TestExtractLimit(t *testing.T) {
	in := writeCorpusText(t)
	out := t.TempDir()

	st, err := Extract(in, out, 2, Keywords)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Sentences)
	assert.Equal(t, 3, st.Matches)

	sentences, err := os.ReadFile(filepath.Join(out, SentencesFile))
	require.NoError(t, err)
	assert.Equal(t, "doc_id,sent_id,sentence\n"+
		"0,0,El consumo de alcohol aumentó.\n"+
		"0,1,La cocaína y el tabaco también.\n", string(sentences))
}

func TestSearchSentences(t *testing.T) {
	in := filepath.Join(t.TempDir(), "cowese.txt")
	text := "El alcohol daña el hígado. El alcohol causa accidentes. " +
		"La cocaína daña el corazón. El tabaco causa cáncer. La marihuana relaja.\n"
	require.NoError(t, os.WriteFile(in, []byte(text), 0644))
	out := t.TempDir()
	_, err := Extract(in, out, 0, Keywords)
	require.NoError(t, err)

	hits, err := SearchSentences(out, "alcohol", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "El alcohol daña el hígado.", hits[0].Sentence)
	assert.Equal(t, int64(0), hits[0].SentID)
	assert.Equal(t, "El alcohol causa accidentes.", hits[1].Sentence)
	assert.Equal(t, int64(1), hits[1].SentID)
	assert.InDelta(t, 1/math.Sqrt2, hits[0].Score, 1e-9)
	assert.Equal(t, []string{"0", "0", "El alcohol daña el hígado.", "0.707107"}, hits[0].CSV())
}

func TestSearchSentencesWithoutExtract(t *testing.T) {
	_, err := SearchSentences(t.TempDir(), "alcohol", 5)
	assert.Error(t, err)
}

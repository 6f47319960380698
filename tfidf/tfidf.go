// Package tfidf is a small term-weighting index over short documents:
// n-gram vocabulary, smoothed inverse document frequency, L2-normalized rows
// and cosine ranking.
package tfidf

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

type Options struct {
	Stopwords []string
	// NgramMin and NgramMax bound the n-gram sizes; zero values mean 1.
	NgramMin, NgramMax int
	// MinDF drops terms found in fewer documents. Zero means 1.
	MinDF int
	// MaxDF drops terms found in more than this share of documents. Zero
	// means 1.0.
	MaxDF float64
	// MaxFeatures keeps only the most frequent terms over the corpus when
	// positive.
	MaxFeatures int
}

// Vector is a sparse row: term index → weight.
type Vector map[int]float64

type Vectorizer struct {
	opts  Options
	stop  map[string]bool
	vocab map[string]int
	terms []string
	idf   []float64
}

func (o Options) withDefaults() Options {
	if o.NgramMin <= 0 {
		o.NgramMin = 1
	}
	if o.NgramMax < o.NgramMin {
		o.NgramMax = o.NgramMin
	}
	if o.MinDF <= 0 {
		o.MinDF = 1
	}
	if o.MaxDF <= 0 {
		o.MaxDF = 1.0
	}
	return o
}

// Analyze lower-cases doc, extracts word tokens of two or more characters,
// removes stopwords and returns the n-grams in document order.
func (v *Vectorizer) Analyze(doc string) []string {
	var toks []string
	for _, t := range tokenRe.FindAllString(strings.ToLower(doc), -1) {
		if !v.stop[t] {
			toks = append(toks, t)
		}
	}
	var out []string
	for n := v.opts.NgramMin; n <= v.opts.NgramMax; n++ {
		for i := 0; i+n <= len(toks); i++ {
			out = append(out, strings.Join(toks[i:i+n], " "))
		}
	}
	return out
}

// Fit learns the vocabulary and idf weights from docs.
func Fit(docs []string, opts Options) *Vectorizer {
	v := &Vectorizer{opts: opts.withDefaults(), stop: make(map[string]bool)}
	for _, w := range opts.Stopwords {
		v.stop[strings.ToLower(w)] = true
	}

	df := make(map[string]int)
	tf := make(map[string]int)
	for _, d := range docs {
		seen := make(map[string]bool)
		for _, g := range v.Analyze(d) {
			tf[g]++
			if !seen[g] {
				seen[g] = true
				df[g]++
			}
		}
	}

	n := len(docs)
	maxDocs := v.opts.MaxDF * float64(n)
	var terms []string
	for t, c := range df {
		if c < v.opts.MinDF || float64(c) > maxDocs {
			continue
		}
		terms = append(terms, t)
	}
	if v.opts.MaxFeatures > 0 && len(terms) > v.opts.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if tf[terms[i]] != tf[terms[j]] {
				return tf[terms[i]] > tf[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.opts.MaxFeatures]
	}
	sort.Strings(terms)

	v.terms = terms
	v.vocab = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, t := range terms {
		v.vocab[t] = i
		v.idf[i] = math.Log(float64(1+n)/float64(1+df[t])) + 1
	}
	return v
}

// Terms returns the vocabulary in index order.
func (v *Vectorizer) Terms() []string {
	return v.terms
}

// IDF returns the weight of term, or 0 when it is not in the vocabulary.
func (v *Vectorizer) IDF(term string) float64 {
	if i, ok := v.vocab[term]; ok {
		return v.idf[i]
	}
	return 0
}

// Transform returns the L2-normalized tf-idf row of doc. Out-of-vocabulary
// terms are ignored; a document with none yields an empty vector.
func (v *Vectorizer) Transform(doc string) Vector {
	vec := make(Vector)
	for _, g := range v.Analyze(doc) {
		if i, ok := v.vocab[g]; ok {
			vec[i]++
		}
	}
	var norm float64
	for i, c := range vec {
		w := c * v.idf[i]
		vec[i] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Dot is the cosine similarity of two normalized vectors.
func Dot(a, b Vector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var s float64
	for i, w := range a {
		s += w * b[i]
	}
	return s
}

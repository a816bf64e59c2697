// Package bm25 implements the BM25 lexical index (C2): Okapi BM25
// scoring over a fixed, pre-tokenized corpus built once and queried
// many times without locking.
package bm25

import "math"

const (
	k1 = 1.5
	b  = 0.75
)

// Index is the immutable, built-once BM25 index over a corpus of
// tokenized chunks. All fields are read-only after Build returns, so
// an *Index is safe for concurrent use without synchronization.
type Index struct {
	n      int
	tf     []map[string]int // tf[i][term] = count of term in chunk i
	dl     []int            // document length per chunk
	df     map[string]int   // corpus-wide document frequency per term
	avgdl  float64
	idf    map[string]float64
}

// Build precomputes the per-chunk term frequencies, document lengths,
// corpus-wide document frequencies, average document length, and
// per-term IDF from a list of already-tokenized chunks.
func Build(tokenizedChunks [][]string) *Index {
	n := len(tokenizedChunks)
	idx := &Index{
		n:  n,
		tf: make([]map[string]int, n),
		dl: make([]int, n),
		df: make(map[string]int),
	}

	for i, tokens := range tokenizedChunks {
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		idx.tf[i] = tf
		idx.dl[i] = len(tokens)
		for t := range tf {
			idx.df[t]++
		}
	}

	var totalLen int64
	for _, l := range idx.dl {
		totalLen += int64(l)
	}
	if n == 0 {
		idx.avgdl = 1
	} else {
		idx.avgdl = float64(totalLen) / float64(n)
		if idx.avgdl == 0 {
			idx.avgdl = 1
		}
	}

	idx.idf = make(map[string]float64, len(idx.df))
	for t, df := range idx.df {
		idx.idf[t] = idfOf(n, df)
	}

	return idx
}

// idfOf computes ln(1 + (N - df + 0.5) / (df + 0.5)), which is always
// non-negative for df >= 0.
func idfOf(n, df int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// GetScores returns a dense array of N BM25 scores, one per chunk, for
// the given query tokens. Tokens absent from the corpus contribute 0.
func (idx *Index) GetScores(queryTokens []string) []float64 {
	scores := make([]float64, idx.n)
	if idx.n == 0 {
		return scores
	}

	// Deduplicate query terms with their IDF looked up once.
	terms := make(map[string]float64)
	for _, t := range queryTokens {
		if _, ok := terms[t]; ok {
			continue
		}
		idf, known := idx.idf[t]
		if !known {
			continue
		}
		terms[t] = idf
	}

	for i := 0; i < idx.n; i++ {
		dl := float64(idx.dl[i])
		if dl == 0 {
			dl = 1
		}
		tf := idx.tf[i]

		var score float64
		for t, idf := range terms {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			denom := f + k1*(1-b+b*dl/idx.avgdl)
			score += idf * f * (k1 + 1) / denom
		}
		scores[i] = score
	}

	return scores
}

// N returns the number of chunks in the index.
func (idx *Index) N() int { return idx.n }

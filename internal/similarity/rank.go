package similarity

import "sort"

const (
	DefaultTopK          = 15
	DefaultPairThreshold = 0.70

	StatusNoEmbedding = "source document has no embedding"
	StatusNotEnough   = "not enough documents with embeddings"
)

// Ref identifies a document in results.
type Ref struct {
	ID     string
	DocID  int64
	Title  string
	Parent string
}

// Candidate is a document with its resolved full-document vector. An empty
// Vector means the document has no usable embedding.
type Candidate struct {
	Ref
	Vector []float32
}

// Match is one ranked neighbour of a target document.
type Match struct {
	Ref
	Similarity float64
}

// Result of a nearest-neighbour query. Status explains an empty result.
type Result struct {
	Matches []Match
	Status  string
}

// Pair is an unordered pair of documents whose similarity met the threshold.
type Pair struct {
	A          Ref
	B          Ref
	Similarity float64
}

// FindSimilar ranks every other candidate against targetID, most similar
// first, and keeps the top topK. Ties keep candidate order.
func FindSimilar(targetID string, candidates []Candidate, topK int) Result {
	if topK <= 0 {
		topK = DefaultTopK
	}

	var target []float32
	for _, c := range candidates {
		if c.ID == targetID {
			target = c.Vector
			break
		}
	}
	if len(target) == 0 {
		return Result{Status: StatusNoEmbedding}
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == targetID || len(c.Vector) == 0 {
			continue
		}
		matches = append(matches, Match{
			Ref:        c.Ref,
			Similarity: CosineSimilarity(target, c.Vector),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) == 0 {
		return Result{Matches: matches, Status: StatusNotEnough}
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return Result{Matches: matches}
}

// FindSimilarPairs compares every pair of embedded candidates and keeps
// those at or above threshold, most similar first. This is a quadratic scan
// meant for offline duplicate discovery.
func FindSimilarPairs(candidates []Candidate, threshold float64) []Pair {
	embedded := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) > 0 {
			embedded = append(embedded, c)
		}
	}

	var pairs []Pair
	for i := 0; i < len(embedded); i++ {
		for j := i + 1; j < len(embedded); j++ {
			sim := CosineSimilarity(embedded[i].Vector, embedded[j].Vector)
			if sim >= threshold {
				pairs = append(pairs, Pair{A: embedded[i].Ref, B: embedded[j].Ref, Similarity: sim})
			}
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Similarity > pairs[j].Similarity
	})
	return pairs
}

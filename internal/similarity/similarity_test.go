package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id string, v ...float32) Candidate {
	return Candidate{Ref: Ref{ID: id, Title: "doc " + id}, Vector: v}
}

func TestCosineSimilarity(t *testing.T) {
	v := []float32{0.3, -1.2, 4, 0.01}
	neg := []float32{-0.3, 1.2, -4, -0.01}
	w := []float32{2, 0.5, -1, 3}

	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-12)
	assert.InDelta(t, -1.0, CosineSimilarity(v, neg), 1e-12)
	assert.Equal(t, CosineSimilarity(v, w), CosineSimilarity(w, v))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}))
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"mismatched lengths", []float32{1, 2}, []float32{1, 2, 3}},
		{"empty", nil, nil},
		{"zero vector", []float32{0, 0}, []float32{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.0, CosineSimilarity(tt.a, tt.b))
		})
	}
}

func TestCosineSimilarityStaysInRange(t *testing.T) {
	v := []float32{1e-3, 1e-3, 1e-3}
	sim := CosineSimilarity(v, v)
	assert.LessOrEqual(t, sim, 1.0)
	assert.GreaterOrEqual(t, sim, -1.0)
}

func TestFindSimilar(t *testing.T) {
	docs := []Candidate{
		candidate("t", 1, 0),
		candidate("far", 0, 1),
		candidate("near", 1, 0.1),
		candidate("none"),
		candidate("same", 2, 0),
	}

	res := FindSimilar("t", docs, 0)

	assert.Empty(t, res.Status)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, "same", res.Matches[0].ID)
	assert.Equal(t, "near", res.Matches[1].ID)
	assert.Equal(t, "far", res.Matches[2].ID)
	assert.InDelta(t, 1.0, res.Matches[0].Similarity, 1e-9)
	assert.Equal(t, "doc same", res.Matches[0].Title)
}

func TestFindSimilarTopKAndStableTies(t *testing.T) {
	docs := []Candidate{
		candidate("t", 1, 1),
		candidate("a", 1, 1),
		candidate("b", 2, 2),
		candidate("c", 3, 3),
		candidate("d", 0, 1),
	}

	res := FindSimilar("t", docs, 2)

	require.Len(t, res.Matches, 2)
	assert.Equal(t, "a", res.Matches[0].ID)
	assert.Equal(t, "b", res.Matches[1].ID)
}

func TestFindSimilarDefaultTopK(t *testing.T) {
	docs := []Candidate{candidate("t", 1, 0)}
	for i := 0; i < 20; i++ {
		docs = append(docs, candidate(string(rune('a'+i)), 1, float32(i)))
	}

	res := FindSimilar("t", docs, 0)
	assert.Len(t, res.Matches, DefaultTopK)
}

func TestFindSimilarTargetWithoutEmbedding(t *testing.T) {
	docs := []Candidate{candidate("t"), candidate("a", 1, 0)}

	res := FindSimilar("t", docs, 5)
	assert.Empty(t, res.Matches)
	assert.Equal(t, StatusNoEmbedding, res.Status)

	res = FindSimilar("missing", docs, 5)
	assert.Equal(t, StatusNoEmbedding, res.Status)
}

func TestFindSimilarOnlyTargetEmbedded(t *testing.T) {
	docs := []Candidate{candidate("t", 1, 0), candidate("a")}

	res := FindSimilar("t", docs, 5)
	assert.Empty(t, res.Matches)
	assert.Equal(t, StatusNotEnough, res.Status)
}

func TestFindSimilarPairs(t *testing.T) {
	docs := []Candidate{
		candidate("a", 1, 0),
		candidate("b", 1, 0),
		candidate("c", 0, 1),
	}

	pairs := FindSimilarPairs(docs, 0.9)

	require.Len(t, pairs, 1)
	assert.Equal(t, "a", pairs[0].A.ID)
	assert.Equal(t, "b", pairs[0].B.ID)
	assert.InDelta(t, 1.0, pairs[0].Similarity, 1e-12)
}

func TestFindSimilarPairsSortedAndSkipsUnembedded(t *testing.T) {
	docs := []Candidate{
		candidate("a", 1, 0.5),
		candidate("x"),
		candidate("b", 1, 0),
		candidate("c", 1, 0.4),
	}

	pairs := FindSimilarPairs(docs, DefaultPairThreshold)

	require.Len(t, pairs, 3)
	for i := 1; i < len(pairs); i++ {
		assert.GreaterOrEqual(t, pairs[i-1].Similarity, pairs[i].Similarity)
	}
	for _, p := range pairs {
		assert.NotEqual(t, "x", p.A.ID)
		assert.NotEqual(t, "x", p.B.ID)
	}
	assert.Equal(t, "a", pairs[0].A.ID)
	assert.Equal(t, "c", pairs[0].B.ID)
}

func TestFindSimilarPairsEmpty(t *testing.T) {
	assert.Empty(t, FindSimilarPairs(nil, 0.7))
	assert.Empty(t, FindSimilarPairs([]Candidate{candidate("a", 1)}, 0.7))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.123, Round(0.12345))
	assert.Equal(t, 0.124, Round(0.1236))
	assert.Equal(t, -0.5, Round(-0.49951))
	assert.Equal(t, 1.0, Round(0.99951))
}

package clustering

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

type kmeansConfig struct {
	k         int
	maxIter   int
	tolerance float64
	seed      uint64
}

// kmeansModel holds fitted centroids.
type kmeansModel struct {
	centroids  [][]float64
	iterations int
	distortion float64
	sizes      []int
}

// fitKMeans runs Lloyd's algorithm from k-means++ seeds. It stops after
// maxIter iterations or once no centroid moves more than tolerance. A cluster
// that loses all members keeps its previous centroid.
func fitKMeans(points [][]float64, cfg kmeansConfig) (*kmeansModel, error) {
	if len(points) < cfg.k {
		return nil, fmt.Errorf("kmeans: %d points for k=%d", len(points), cfg.k)
	}

	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15))
	centroids := seedCentroids(points, cfg.k, rng)
	labels := make([]int, len(points))

	iterations := 0
	for iterations < cfg.maxIter {
		iterations++
		for i, p := range points {
			labels[i], _ = nearest(centroids, p)
		}

		next := recompute(points, labels, centroids)
		shift := 0.0
		for c := range next {
			shift = math.Max(shift, floats.Distance(next[c], centroids[c], 2))
		}
		centroids = next
		if shift <= cfg.tolerance {
			break
		}
	}

	model := &kmeansModel{
		centroids:  centroids,
		iterations: iterations,
		sizes:      make([]int, cfg.k),
	}
	for _, p := range points {
		c, d := nearest(centroids, p)
		model.sizes[c]++
		model.distortion += d * d
	}
	return model, nil
}

// seedCentroids picks k initial centroids with k-means++ weighting.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	weights := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			_, d := nearest(centroids, p)
			weights[i] = d * d
			total += weights[i]
		}

		pick := rng.IntN(len(points))
		if total > 0 {
			target := rng.Float64() * total
			for i, w := range weights {
				target -= w
				if target <= 0 {
					pick = i
					break
				}
			}
		}
		centroids = append(centroids, clone(points[pick]))
	}
	return centroids
}

// nearest returns the index of the closest centroid and its distance.
// Ties go to the lowest index.
func nearest(centroids [][]float64, p []float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(centroid, p, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func recompute(points [][]float64, labels []int, previous [][]float64) [][]float64 {
	dim := len(previous[0])
	sums := make([][]float64, len(previous))
	counts := make([]int, len(previous))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		floats.Add(sums[labels[i]], p)
		counts[labels[i]]++
	}

	next := make([][]float64, len(previous))
	for c := range sums {
		if counts[c] == 0 {
			next[c] = clone(previous[c])
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
		next[c] = sums[c]
	}
	return next
}

func (m *kmeansModel) predict(p []float64) int {
	c, _ := nearest(m.centroids, p)
	return c
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

package meshprep

import gomath "math"

// DefaultCacheSize is the simulated post-transform cache size.
const DefaultCacheSize = 32

// Forsyth scoring constants.
const (
	cacheDecayPower   = 1.5
	lastTriScore      = 0.75
	valenceBoostScale = 2.0
	valenceBoostPower = 0.5
)

func vertexScore(cachePos, remaining, cacheSize int) float32 {
	if remaining == 0 {
		return 0
	}
	var s float64
	switch {
	case cachePos < 0:
	case cachePos < 3:
		s = lastTriScore
	default:
		scale := 1.0 / float64(cacheSize-3)
		s = gomath.Pow(1-float64(cachePos-3)*scale, cacheDecayPower)
	}
	s += valenceBoostScale * gomath.Pow(float64(remaining), -valenceBoostPower)
	return float32(s)
}

type cacheVertex struct {
	tris      []int
	remaining int
	cachePos  int
	score     float32
}

// OptimizeVertexCache reorders the triangles of a triangle list in place to
// improve reuse in a FIFO vertex cache of cacheSize entries. Every index must
// lie in [vertexStart, vertexStart+vertexCount). It returns the emitted order
// as original triangle numbers.
func OptimizeVertexCache(indices []uint32, vertexStart, vertexCount, cacheSize int) []int {
	faces := len(indices) / 3
	if faces == 0 {
		return nil
	}
	if cacheSize < 4 {
		cacheSize = 4
	}

	verts := make([]cacheVertex, vertexCount)
	for f := 0; f < faces; f++ {
		for c := 0; c < 3; c++ {
			v := &verts[int(indices[3*f+c])-vertexStart]
			v.tris = append(v.tris, f)
			v.remaining++
		}
	}
	for i := range verts {
		verts[i].cachePos = -1
		verts[i].score = vertexScore(-1, verts[i].remaining, cacheSize)
	}

	triScore := make([]float32, faces)
	for f := 0; f < faces; f++ {
		for c := 0; c < 3; c++ {
			triScore[f] += verts[int(indices[3*f+c])-vertexStart].score
		}
	}

	emitted := make([]bool, faces)
	order := make([]int, 0, faces)
	cache := make([]int, 0, cacheSize+3)
	next := make([]int, 0, cacheSize+3)
	best := -1

	for len(order) < faces {
		if best < 0 {
			bestScore := float32(-1)
			for f := 0; f < faces; f++ {
				if !emitted[f] && triScore[f] > bestScore {
					best, bestScore = f, triScore[f]
				}
			}
		}

		f := best
		emitted[f] = true
		order = append(order, f)

		next = next[:0]
		for c := 0; c < 3; c++ {
			vi := int(indices[3*f+c]) - vertexStart
			v := &verts[vi]
			v.remaining--
			removeOnce(&v.tris, f)
			if !containsInt(next, vi) {
				next = append(next, vi)
			}
		}
		for _, vi := range cache {
			if !containsInt(next, vi) {
				next = append(next, vi)
			}
		}

		for i, vi := range next {
			v := &verts[vi]
			v.cachePos = -1
			if i < cacheSize {
				v.cachePos = i
			}
			score := vertexScore(v.cachePos, v.remaining, cacheSize)
			delta := score - v.score
			v.score = score
			for _, t := range v.tris {
				triScore[t] += delta
			}
		}

		if len(next) > cacheSize {
			next = next[:cacheSize]
		}
		cache, next = next, cache

		best = -1
		bestScore := float32(-1)
		for _, vi := range cache {
			for _, t := range verts[vi].tris {
				if triScore[t] > bestScore {
					best, bestScore = t, triScore[t]
				}
			}
		}
	}

	reordered := make([]uint32, 0, len(indices))
	for _, f := range order {
		reordered = append(reordered, indices[3*f:3*f+3]...)
	}
	copy(indices, reordered)
	return order
}

func removeOnce(s *[]int, x int) {
	for i, v := range *s {
		if v == x {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return
		}
	}
}

func containsInt(s []int, x int) bool {
	for _, v := range s {
		if v == x {
			return true
		}
	}
	return false
}

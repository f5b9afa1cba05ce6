// Package synthetic produces labeled training examples from a parametric
// ground-truth execution-time function, used to bootstrap the service when
// no real scheduling history exists.
package synthetic

import (
	"math"
	"math/rand/v2"

	"github.com/Aidin1998/taskpredict/internal/features"
)

// DefaultSeed keeps bootstrap training reproducible across restarts.
const DefaultSeed = 42

// Generator draws feature vectors uniformly over the contract ranges and
// labels them with a noisy multiplicative cost model:
//
//	base = taskSize * 2
//	typeMod = {CPU: 1.0, IO: 1.3, MIXED: 1.15}
//	loadMod = 1 + resourceLoad/100 * 0.5
//	priMod  = 1 - (priority-3) * 0.02
//	t = max(base*typeMod*loadMod*priMod + N(0, 0.5), 0.5)
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a seeded generator.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Examples generates n labeled training examples.
func (g *Generator) Examples(n int) []features.Example {
	out := make([]features.Example, n)
	for i := range out {
		v := features.Vector{
			TaskSize:     1 + g.rng.IntN(3),
			TaskType:     1 + g.rng.IntN(3),
			Priority:     1 + g.rng.IntN(5),
			ResourceLoad: g.rng.Float64() * 100,
		}
		out[i] = features.Example{Features: v, Label: g.label(v)}
	}
	return out
}

func (g *Generator) label(v features.Vector) float64 {
	base := float64(v.TaskSize) * 2.0

	var typeMod float64
	switch v.TaskType {
	case features.TypeCPU:
		typeMod = 1.0
	case features.TypeIO:
		typeMod = 1.3
	default:
		typeMod = 1.15
	}

	loadMod := 1 + (v.ResourceLoad/100)*0.5
	priMod := 1 - float64(v.Priority-3)*0.02
	noise := g.rng.NormFloat64() * 0.5

	return math.Max(base*typeMod*loadMod*priMod+noise, 0.5)
}

package vad

import (
	"fmt"
	"math"
)

// EnergyScorer is a lightweight [Scorer] based on frame RMS energy. It maps
// the frame's root-mean-square amplitude onto [0, 1] relative to a reference
// level, so a silence floor scores near zero and sustained speech scores near
// one. It has no model weights and no warm-up, which makes it the default
// when no external classifier is wired in.
type EnergyScorer struct {
	// Reference is the RMS amplitude (in [0, 1] float sample units) that maps
	// to a probability of 1.0. Typical speech on a normalized capture chain
	// sits around 0.05–0.2.
	Reference float64
}

// NewEnergyScorer returns an EnergyScorer with the given reference level.
func NewEnergyScorer(reference float64) (*EnergyScorer, error) {
	if reference <= 0 || reference > 1 {
		return nil, fmt.Errorf("vad: energy reference %v outside (0, 1]", reference)
	}
	return &EnergyScorer{Reference: reference}, nil
}

// Score implements [Scorer].
func (s *EnergyScorer) Score(frame []float32) (float64, error) {
	if len(frame) == 0 {
		return 0, nil
	}
	var sum float64
	for _, v := range frame {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	return min(rms/s.Reference, 1), nil
}

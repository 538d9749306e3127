package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowstate/padaf/particle"
)

func TestMockRunWindowStepsAcrossRange(t *testing.T) {
	require := require.New(t)

	m := &Mock{Transition: func(s []float64) []float64 { return []float64{s[0] + 1} }}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	samples, err := m.RunWindow(context.Background(), 1, particle.NewStateVector([]float64{0.0}), start, end, time.Hour)
	require.NoError(err)
	require.Len(samples, 3)
	for i, s := range samples {
		require.True(s.Time.Equal(start.Add(time.Duration(i+1) * time.Hour)))
		require.Equal(float64(i+1), s.State.AtVec(0))
		require.Equal(float64(i+1), s.Outputs[VarDischarge])
	}
}

func TestMockRunWindowPartialFailureReturnsPrefix(t *testing.T) {
	require := require.New(t)

	m := &Mock{FailIndices: map[int]bool{1: true}}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	samples, err := m.RunWindow(context.Background(), 1, particle.NewStateVector([]float64{5.0}), start, end, time.Hour)
	require.Error(err)
	require.Empty(samples)
}

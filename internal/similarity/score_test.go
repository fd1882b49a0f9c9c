package similarity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []string
		want int
	}{
		{"identical", []string{"JUAN", "PEREZ"}, []string{"JUAN", "PEREZ"}, 100},
		{"identical reordered", []string{"PEREZ", "JUAN"}, []string{"JUAN", "PEREZ"}, 100},
		{"disjoint", []string{"JUAN", "PEREZ"}, []string{"ANA", "LOPEZ"}, 0},
		{"one common of two each", []string{"J", "PEREZ"}, []string{"JUAN", "PEREZ"}, 50},
		{"subset two of three", []string{"JUAN", "PEREZ"}, []string{"JUAN", "CARLOS", "PEREZ"}, 80},
		{"single contained", []string{"PEREZ"}, []string{"JUAN", "PEREZ"}, 67},
		{"multiplicity counts", []string{"LA", "LA"}, []string{"LA"}, 67},
		{"empty a", nil, []string{"JUAN"}, 0},
		{"empty b", []string{"JUAN"}, nil, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Score(tc.a, tc.b))
		})
	}
}

func TestScoreSymmetricAndBounded(t *testing.T) {
	t.Parallel()

	pairs := [][2][]string{
		{{"JUAN", "PEREZ"}, {"PEREZ", "J"}},
		{{"A"}, {"A", "B", "C", "D"}},
		{{"X", "X", "Y"}, {"X", "Y", "Y"}},
		{{"SUCESION", "DE", "GOMEZ"}, {"GOMEZ", "HERMANOS"}},
	}
	for _, p := range pairs {
		ab, ba := Score(p[0], p[1]), Score(p[1], p[0])
		require.Equal(t, ab, ba)
		require.GreaterOrEqual(t, ab, 0)
		require.LessOrEqual(t, ab, 100)
	}
}

func TestScoreSubsetScoresHigh(t *testing.T) {
	t.Parallel()

	// A fully-contained smaller side scores at least 66 when the sides are
	// not wildly different in length.
	got := Score([]string{"PEREZ"}, []string{"PEREZ", "JUAN"})
	require.GreaterOrEqual(t, got, 66)

	got = Score([]string{"JUAN", "PEREZ"}, []string{"JUAN", "CARLOS", "ALBERTO", "PEREZ"})
	require.GreaterOrEqual(t, got, 66)
}

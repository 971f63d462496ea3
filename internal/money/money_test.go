package money

import "testing"

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.005, 1.01},
		{2.675, 2.68},
		{1.004, 1.00},
		{0.125, 0.13},
		{10.0, 10.0},
		{0, 0},
		{19.999, 20.0},
	}
	for _, tc := range cases {
		if got := Round(tc.in); got != tc.want {
			t.Fatalf("Round(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRoundIdempotent(t *testing.T) {
	values := []float64{1.005, 2.675, 0.1, 99.994, 1234.565}
	for _, v := range values {
		once := Round(v)
		twice := Round(once)
		if once != twice {
			t.Fatalf("Round not idempotent for %v: %v then %v", v, once, twice)
		}
	}
}

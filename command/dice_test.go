package command

import (
	"strings"
	"testing"
)

func TestThrow(t *testing.T) {
	cases := []struct {
		name    string
		n       int64
		one     func() int
		weights []float64
	}{
		{"one-die", 1, die, dieWeights},
		{"few-dice", 10, die, dieWeights},
		{"exact-coins", exactThrows, coin, coinWeights},
		{"many-dice", 1e9, die, dieWeights},
		{"most-coins", MaxThrows, coin, coinWeights},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := throw(c.n, c.one, c.weights)
			if len(r) != len(c.weights) {
				t.Fatalf("wrong number of outcomes: want %d, got %d", len(c.weights), len(r))
			}
			var sum int64
			for i, k := range r {
				if k < 0 {
					t.Errorf("outcome %d is negative: %d", i, k)
				}
				sum += k
			}
			if sum != c.n {
				t.Errorf("wrong total: want %d, got %d (%v)", c.n, sum, r)
			}
		})
	}
}

func TestRollDice(t *testing.T) {
	s := rollDice(4)
	if !strings.HasPrefix(s, "You threw 4 dice.\n1: ") || !strings.Contains(s, ", 6: ") {
		t.Errorf("wrong text: %q", s)
	}
}

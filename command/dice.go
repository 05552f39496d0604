package command

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gitlab.com/zephyrtronium/pick"

	"github.com/chiloven/lukosbot/dispatch"
	"github.com/chiloven/lukosbot/grammar"
	"github.com/chiloven/lukosbot/usage"
)

// MaxThrows is the most dice or coins one command throws.
const MaxThrows = 1_000_000_000_000

// exactThrows is the count up to which each die or coin is thrown
// individually. Larger counts are sampled from a normal approximation.
const exactThrows = 10000

var dieFaces = pick.New([]pick.Case[int]{
	{E: 0, W: 1},
	{E: 1, W: 1},
	{E: 2, W: 1},
	{E: 3, W: 1},
	{E: 4, W: 1},
	{E: 5, W: 1},
})

// coinFaces are heads, tails, and landing on the edge.
var coinFaces = pick.New([]pick.Case[int]{
	{E: 0, W: 3000},
	{E: 1, W: 3000},
	{E: 2, W: 1},
})

var (
	dieWeights  = []float64{1, 1, 1, 1, 1, 1}
	coinWeights = []float64{3000, 3000, 1}
)

func die() int  { return dieFaces.Pick(rand.Uint32()) }
func coin() int { return coinFaces.Pick(rand.Uint32()) }

// throw counts the outcomes of n throws.
func throw(n int64, one func() int, weights []float64) []int64 {
	r := make([]int64, len(weights))
	if n <= exactThrows {
		for range n {
			r[one()]++
		}
		return r
	}
	// Sample each outcome from the binomial distribution of what remains,
	// approximated as normal.
	var total float64
	for _, w := range weights {
		total += w
	}
	left := n
	for i, w := range weights[:len(weights)-1] {
		p := w / total
		total -= w
		mean := float64(left) * p
		sd := math.Sqrt(float64(left) * p * (1 - p))
		k := int64(math.Round(mean + sd*rand.NormFloat64()))
		k = max(0, min(k, left))
		r[i] = k
		left -= k
	}
	r[len(r)-1] = left
	return r
}

// Dice throws six-sided dice.
//   - count: Number of dice, default 1.
func Dice(b *Bot) Command {
	doc := usage.Root("dice").
		Description("Throw dice").
		Syntax("Throw dice, one by default", grammar.Opt(grammar.Arg("count"))).
		Param("count", fmt.Sprintf("number of dice, from 1 to %d", int64(MaxThrows))).
		Example("dice", "dice 3").
		Build()
	roll := func(ctx context.Context, c *Context) (int, error) {
		c.Source.Reply(rollDice(c.Int("count", 1)))
		return 1, nil
	}
	root := Literal("dice").
		Executes(roll).
		Then(Argument("count", dispatch.IntRange(1, MaxThrows)).Executes(roll))
	return &Tree{Root: root, Doc: doc}
}

func rollDice(n int64) string {
	faces := throw(n, die, dieWeights)
	if n == 1 {
		for i, k := range faces {
			if k != 0 {
				return fmt.Sprintf("You threw 1 die.\nIt landed on... %d!", i+1)
			}
		}
	}
	var s strings.Builder
	var sum int64
	fmt.Fprintf(&s, "You threw %d dice.\n", n)
	for i, k := range faces {
		if i > 0 {
			s.WriteString(", ")
		}
		fmt.Fprintf(&s, "%d: %d", i+1, k)
		sum += int64(i+1) * k
	}
	fmt.Fprintf(&s, "\nThey add up to %d!", sum)
	return s.String()
}

// Coin flips coins.
//   - count: Number of coins.
func Coin(b *Bot) Command {
	doc := usage.Root("coin").
		Description("Flip coins").
		Syntax("Flip some coins", grammar.Arg("count")).
		Param("count", fmt.Sprintf("number of coins, from 1 to %d", int64(MaxThrows))).
		Note("Coins land on their edge about once in six thousand flips.").
		Example("coin 10").
		Build()
	root := Literal("coin").
		Executes(func(ctx context.Context, c *Context) (int, error) {
			b.SendUsage(ctx, c.Source, "coin", doc, usage.ForCommand(b.prefix()), usage.ModeText)
			return 1, nil
		}).
		Then(Argument("count", dispatch.IntRange(1, MaxThrows)).
			Executes(func(ctx context.Context, c *Context) (int, error) {
				n := c.Int("count", 1)
				r := throw(n, coin, coinWeights)
				c.Source.Reply(fmt.Sprintf("You flipped %d coins.\n%d landed heads and %d landed tails...\nand %d stood on edge!", n, r[0], r[1], r[2]))
				return 1, nil
			}),
		)
	return &Tree{Root: root, Doc: doc}
}

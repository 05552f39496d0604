package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/chiloven/lukosbot/dispatch"
	"github.com/chiloven/lukosbot/grammar"
	"github.com/chiloven/lukosbot/usage"
)

// PageSize is the number of commands per page of the commands list.
const PageSize = 10

// List pages through command names and descriptions.
func List(b *Bot) Command {
	doc := usage.Root("commands").
		Description("Page through all commands").
		Syntax("Show a page of commands", grammar.Opt(grammar.Arg("page"))).
		Param("page", "page number, starting at 1").
		Example("commands", "commands 2").
		Build()
	page := func(ctx context.Context, c *Context) (int, error) {
		return listPage(b, c.Source, c.Int("page", 1)), nil
	}
	root := Literal("commands").
		Executes(page).
		Then(Argument("page", dispatch.IntMin(1)).Executes(page))
	return &Tree{Root: root, Doc: doc}
}

func listPage(b *Bot, src *Source, n int64) int {
	all := b.Commands.Visible()
	pages := max(1, (len(all)+PageSize-1)/PageSize)
	if n > int64(pages) {
		src.Reply(fmt.Sprintf("Page %d is past the end. The last page is %d.", n, pages))
		return 0
	}
	lo := int(n-1) * PageSize
	hi := min(lo+PageSize, len(all))
	var s strings.Builder
	fmt.Fprintf(&s, "Commands (page %d of %d):\n", n, pages)
	for _, c := range all[lo:hi] {
		fmt.Fprintf(&s, "%s%s - %s\n", b.prefix(), c.Name(), c.Description())
	}
	return replyTrimmed(src, s.String())
}

func replyTrimmed(src *Source, s string) int {
	src.Reply(strings.TrimSpace(s))
	return 1
}

package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/chiloven/lukosbot/dispatch"
	"github.com/chiloven/lukosbot/grammar"
	"github.com/chiloven/lukosbot/usage"
)

// Help lists commands or shows the usage of one.
func Help(b *Bot) Command {
	doc := usage.Root("help").
		Description("List commands or show how to use one").
		Syntax("List all commands").
		Syntax("Show how to use a command", grammar.Arg("command"), grammar.OptAlt(grammar.Lit("img"), grammar.Lit("text"))).
		Param("command", "command name without the prefix, e.g. pref or ip").
		Note(
			"img sends the usage as an image and text sends it as text.",
			"Without either, long usage is sent as an image. Set usage.mode with pref to change the default.",
		).
		Example("help", "help pref", "help pref img").
		Build()
	root := Literal("help").
		Executes(func(ctx context.Context, c *Context) (int, error) {
			c.Source.Reply(helpList(b))
			return 1, nil
		}).
		Then(Argument("command", dispatch.Word()).
			Executes(func(ctx context.Context, c *Context) (int, error) {
				return showHelp(ctx, b, c.Source, c.String("command"), b.usageMode(ctx, c.Source)), nil
			}).
			Then(Argument("mode", dispatch.Word()).
				Executes(func(ctx context.Context, c *Context) (int, error) {
					return showHelp(ctx, b, c.Source, c.String("command"), usage.ParseMode(c.String("mode"))), nil
				}),
			),
		)
	return &Tree{Root: root, Doc: doc}
}

func helpList(b *Bot) string {
	var s strings.Builder
	s.WriteString("Available commands:\n")
	for _, c := range b.Commands.Visible() {
		fmt.Fprintf(&s, "%s%s - %s\n", b.prefix(), c.Name(), c.Description())
	}
	fmt.Fprintf(&s, "\nUse %shelp <command> to see how to use a command.", b.prefix())
	return s.String()
}

func showHelp(ctx context.Context, b *Bot, src *Source, name string, mode usage.Mode) int {
	c, ok := b.Commands.Get(name)
	if !ok || IsHidden(c) || c.Usage() == nil {
		src.Reply(fmt.Sprintf("Unknown command: %s\nUse %shelp to list commands.", name, b.prefix()))
		return 0
	}
	b.SendUsage(ctx, src, c.Name(), c.Usage(), usage.ForHelp(b.prefix()), mode)
	return 1
}

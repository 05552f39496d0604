package command

import (
	"context"
	"log/slog"

	"github.com/chiloven/lukosbot/dispatch"
	"github.com/chiloven/lukosbot/grammar"
	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/usage"
)

// Echo sends text back to the chat where it is invoked.
//   - text: Message to send.
func Echo(b *Bot) Command {
	doc := usage.Root("echo").
		Description("Repeat a message").
		Syntax("Send the text back", grammar.Arg("text")).
		Param("text", "text to send, spaces included").
		Example("echo hello world").
		Build()
	root := Literal("echo").Then(Argument("text", dispatch.Greedy()).
		Executes(func(ctx context.Context, c *Context) (int, error) {
			c.Source.Reply(c.String("text"))
			return 1, nil
		}),
	)
	return &Tree{Root: root, Doc: doc}
}

// EchoIn sends text to any chat. It is hidden and meant for operators.
//   - chat: Chat key of the chat to send to.
//   - text: Message to send.
func EchoIn(b *Bot) Command {
	doc := usage.Root("echoin").
		Description("Send a message to another chat").
		Syntax("Send text to a chat", grammar.Arg("chat"), grammar.Arg("text")).
		Param("chat", "chat key, e.g. TELEGRAM:g:-100123").
		Param("text", "text to send").
		Build()
	root := Literal("echoin").Then(Argument("chat", dispatch.Word()).Then(Argument("text", dispatch.Greedy()).
		Executes(func(ctx context.Context, c *Context) (int, error) {
			if !b.IsOwner(c.Source) {
				b.Log.WarnContext(ctx, "echoin from non-owner", slog.Any("source", c.Source))
				return 0, nil
			}
			to, err := message.ParseChatKey(c.String("chat"))
			if err != nil {
				b.Log.WarnContext(ctx, "echo into bad chat", slog.String("target", c.String("chat")), slog.Any("err", err))
				c.Source.Reply("That isn't a chat key.")
				return 0, nil
			}
			c.Source.Send(to, message.Text(to, c.String("text")))
			return 1, nil
		}),
	))
	return &Tree{Root: root, Doc: doc, Unlisted: true}
}

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chiloven/lukosbot/privacy"
	"github.com/chiloven/lukosbot/usage"
)

// Privacy manages whether the bot records the sender's messages.
func Privacy(b *Bot) Command {
	doc := usage.Root("privacy").
		Description("Stop or resume recording your messages").
		Subcommand("on", "Stop recording your messages", nil).
		Subcommand("off", "Allow recording your messages again", nil).
		Subcommand("status", "Show whether your messages are recorded", nil).
		Note("Commands still work for you either way. Only the text of your messages is affected.").
		Example("privacy on", "privacy status").
		Build()
	root := Literal("privacy").
		Executes(func(ctx context.Context, c *Context) (int, error) {
			return privacyStatus(ctx, b, c.Source)
		}).
		Then(
			Literal("on").Executes(func(ctx context.Context, c *Context) (int, error) {
				return private(ctx, b, c.Source)
			}),
			Literal("off").Executes(func(ctx context.Context, c *Context) (int, error) {
				return unprivate(ctx, b, c.Source)
			}),
			Literal("status").Executes(func(ctx context.Context, c *Context) (int, error) {
				return privacyStatus(ctx, b, c.Source)
			}),
		)
	return &Tree{Root: root, Doc: doc}
}

// privacyUser returns the sender's key in the privacy list.
func privacyUser(b *Bot, src *Source) (string, bool) {
	if b.Privacy == nil {
		src.Reply("The privacy list isn't available.")
		return "", false
	}
	t := src.Target()
	if !t.HasUser {
		src.Reply("I can't tell who you are here.")
		return "", false
	}
	return privacy.Key(t.Addr.Platform, t.User), true
}

func private(ctx context.Context, b *Bot, src *Source) (int, error) {
	u, ok := privacyUser(b, src)
	if !ok {
		return 0, nil
	}
	if err := b.Privacy.Add(ctx, u); err != nil {
		b.Log.ErrorContext(ctx, "privacy add failed", slog.Any("err", err), slog.Any("source", src))
		src.Reply("Something went wrong while adding you to the privacy list. Try again. Sorry!")
		return 0, nil
	}
	src.Reply(fmt.Sprintf("Sure, I won't record your messages. Use %sprivacy off to undo.", b.prefix()))
	return 1, nil
}

func unprivate(ctx context.Context, b *Bot, src *Source) (int, error) {
	u, ok := privacyUser(b, src)
	if !ok {
		return 0, nil
	}
	if err := b.Privacy.Remove(ctx, u); err != nil {
		b.Log.ErrorContext(ctx, "privacy remove failed", slog.Any("err", err), slog.Any("source", src))
		src.Reply("Something went wrong while removing you from the privacy list. Try again. Sorry!")
		return 0, nil
	}
	src.Reply("Sure, I'll record your messages again.")
	return 1, nil
}

func privacyStatus(ctx context.Context, b *Bot, src *Source) (int, error) {
	u, ok := privacyUser(b, src)
	if !ok {
		return 0, nil
	}
	switch err := b.Privacy.Check(ctx, u); {
	case err == nil:
		src.Reply("Your messages may be recorded.")
	case errors.Is(err, privacy.ErrPrivate):
		src.Reply("You're on the privacy list. Your messages aren't recorded.")
	default:
		return 0, fmt.Errorf("couldn't check privacy: %w", err)
	}
	return 1, nil
}

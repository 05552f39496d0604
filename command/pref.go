package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chiloven/lukosbot/dispatch"
	"github.com/chiloven/lukosbot/grammar"
	"github.com/chiloven/lukosbot/state"
	"github.com/chiloven/lukosbot/usage"
)

// Pref shows and changes preferences.
//   - name: Preference name.
//   - value: New value.
func Pref(b *Bot) Command {
	doc := usage.Root("pref").
		Description("Show or change preferences").
		Syntax("List preferences").
		Syntax("Show a preference", grammar.Arg("name")).
		Syntax("Change a preference", grammar.Arg("name"), grammar.Arg("value")).
		Param("name", "preference name, e.g. usage.mode").
		Param("value", "new value").
		Subcommand("clear", "Reset a preference to its default", func(s *usage.Builder) {
			s.Syntax("Reset a preference", grammar.Arg("name")).
				Param("name", "preference name")
		}).
		Note("Preferences you set apply to you everywhere unless the preference belongs to a chat.").
		Example("pref", "pref usage.mode", "pref usage.mode img", "pref clear usage.mode").
		Build()
	root := Literal("pref").
		Executes(func(ctx context.Context, c *Context) (int, error) {
			c.Source.Reply(prefList(b))
			return 1, nil
		}).
		Then(
			Literal("clear").Then(Argument("name", dispatch.Word()).
				Executes(func(ctx context.Context, c *Context) (int, error) {
					return clearPref(ctx, b, c.Source, c.String("name"))
				}),
			),
			Argument("name", dispatch.Word()).
				Executes(func(ctx context.Context, c *Context) (int, error) {
					return getPref(ctx, b, c.Source, c.String("name"))
				}).
				Then(Argument("value", dispatch.Greedy()).
					Executes(func(ctx context.Context, c *Context) (int, error) {
						return setPref(ctx, b, c.Source, c.String("name"), c.String("value"))
					}),
				),
		)
	return &Tree{Root: root, Doc: doc}
}

func prefList(b *Bot) string {
	var s strings.Builder
	fmt.Fprintf(&s, "Usage: %spref <name> [value]\nPreferences:", b.prefix())
	if b.Prefs == nil {
		s.WriteString("\n(none)")
		return s.String()
	}
	for _, p := range b.Prefs.All() {
		i := p.Info()
		fmt.Fprintf(&s, "\n- %s", i.Name)
		if i.Description != "" {
			fmt.Fprintf(&s, " (%s)", i.Description)
		}
		if len(i.Suggest) > 0 {
			fmt.Fprintf(&s, "  values: %s", strings.Join(i.Suggest, ", "))
		}
	}
	return s.String()
}

// findPref finds a preference, replying with the list if there is no such
// preference or the bot has no preference store.
func findPref(b *Bot, src *Source, name string) (state.Pref, bool) {
	if b.State == nil || b.Prefs == nil {
		src.Reply("Preferences aren't available.")
		return nil, false
	}
	p, ok := b.Prefs.Find(name)
	if !ok {
		src.Reply(fmt.Sprintf("Unknown preference %q.\n%s", name, prefList(b)))
		return nil, false
	}
	return p, true
}

func getPref(ctx context.Context, b *Bot, src *Source, name string) (int, error) {
	p, ok := findPref(b, src, name)
	if !ok {
		return 0, nil
	}
	v, err := p.Get(ctx, b.State, src.Target())
	if err != nil {
		return 0, fmt.Errorf("couldn't get %s: %w", name, err)
	}
	src.Reply(p.Info().Name + " = " + v)
	return 1, nil
}

func setPref(ctx context.Context, b *Bot, src *Source, name, raw string) (int, error) {
	p, ok := findPref(b, src, name)
	if !ok {
		return 0, nil
	}
	sc, err := p.Set(ctx, b.State, src.Target(), raw)
	if err != nil {
		b.Log.InfoContext(ctx, "couldn't set pref", slog.String("pref", name), slog.Any("source", src), slog.Any("err", err))
		src.Reply(fmt.Sprintf("Couldn't set %s: %v", p.Info().Name, err))
		return 0, nil
	}
	v, err := p.Get(ctx, b.State, src.Target())
	if err != nil {
		return 0, fmt.Errorf("couldn't read back %s: %w", name, err)
	}
	src.Reply(fmt.Sprintf("%s = %s %s", p.Info().Name, v, scopeHint(sc)))
	return 1, nil
}

func clearPref(ctx context.Context, b *Bot, src *Source, name string) (int, error) {
	p, ok := findPref(b, src, name)
	if !ok {
		return 0, nil
	}
	sc, err := p.Clear(ctx, b.State, src.Target())
	if err != nil {
		return 0, fmt.Errorf("couldn't clear %s: %w", name, err)
	}
	v, err := p.Get(ctx, b.State, src.Target())
	if err != nil {
		return 0, fmt.Errorf("couldn't read back %s: %w", name, err)
	}
	src.Reply(fmt.Sprintf("Cleared %s %s. It is now %s.", p.Info().Name, scopeHint(sc), v))
	return 1, nil
}

func scopeHint(s state.Scope) string {
	switch s.Type {
	case state.TypeUser:
		return "(for you)"
	case state.TypeChat:
		return "(for this chat)"
	default:
		return "(for everyone)"
	}
}

package command

// Constructor creates a command using the bot's state.
type Constructor func(b *Bot) Command

// Builtins maps the names of built-in commands to their constructors.
var Builtins = map[string]Constructor{
	"help":     Help,
	"commands": List,
	"echo":     Echo,
	"echoin":   EchoIn,
	"ip":       IP,
	"dice":     Dice,
	"coin":     Coin,
	"pref":     Pref,
	"privacy":  Privacy,
}

// builtinOrder is the order in which built-in commands are added.
var builtinOrder = []string{"help", "commands", "echo", "echoin", "ip", "dice", "coin", "pref", "privacy"}

// AddBuiltins adds the built-in commands to b.Commands. If enabled is
// non-nil, only commands for which it returns true are added; help is
// always added.
func AddBuiltins(b *Bot, enabled func(name string) bool) error {
	var cmds []Command
	for _, name := range builtinOrder {
		if name != "help" && enabled != nil && !enabled(name) {
			continue
		}
		cmds = append(cmds, Builtins[name](b))
	}
	return b.Commands.Add(cmds...)
}

// Package state stores preferences scoped to the whole bot, a user, or a
// chat, and resolves them from the narrowest scope that has a value.
package state

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chiloven/lukosbot/message"
)

// ScopeType is the breadth of a preference.
type ScopeType int

const (
	TypeGlobal ScopeType = iota
	TypeUser
	TypeChat
)

func (t ScopeType) String() string {
	switch t {
	case TypeGlobal:
		return "GLOBAL"
	case TypeUser:
		return "USER"
	case TypeChat:
		return "CHAT"
	default:
		return "ScopeType(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseScopeType parses the result of [ScopeType.String], ignoring case.
func ParseScopeType(s string) (ScopeType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GLOBAL":
		return TypeGlobal, nil
	case "USER":
		return TypeUser, nil
	case "CHAT":
		return TypeChat, nil
	default:
		return 0, fmt.Errorf("unknown scope type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ScopeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ScopeType) UnmarshalText(b []byte) error {
	v, err := ParseScopeType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Scope is the owner of a stored value.
type Scope struct {
	Type ScopeType
	// ID identifies the owner within the type: "_" for the global scope,
	// PLATFORM:user for users, and the chat key for chats.
	ID string
}

// Global is the scope shared by every chat and user.
func Global() Scope {
	return Scope{Type: TypeGlobal, ID: "_"}
}

// User is the scope of one user on a platform.
func User(p message.Platform, id int64) Scope {
	return Scope{Type: TypeUser, ID: string(p) + ":" + strconv.FormatInt(id, 10)}
}

// Chat is the scope of one chat.
func Chat(addr message.Address) Scope {
	return Scope{Type: TypeChat, ID: addr.ChatKey()}
}

func (s Scope) String() string {
	return s.Type.String() + "/" + s.ID
}

// Target is where a preference is being read or written: the chat a
// message arrived in and, if known, its sender.
type Target struct {
	Addr message.Address
	// User is the sender's ID. It is meaningful only if HasUser is true.
	User    int64
	HasUser bool
}

// For creates the target for a message from sender in addr.
// The sender is omitted when it is [message.UnknownSender].
func For(addr message.Address, sender message.Sender) Target {
	if sender == message.UnknownSender() {
		return Target{Addr: addr}
	}
	return Target{Addr: addr, User: sender.ID, HasUser: true}
}

// Scope returns the scope of type t for the target.
// The result is false for user scopes when the target has no user.
func (t Target) Scope(typ ScopeType) (Scope, bool) {
	switch typ {
	case TypeGlobal:
		return Global(), true
	case TypeUser:
		if !t.HasUser {
			return Scope{}, false
		}
		return User(t.Addr.Platform, t.User), true
	case TypeChat:
		return Chat(t.Addr), true
	default:
		return Scope{}, false
	}
}

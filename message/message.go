// Package message is the platform-agnostic message model shared by commands,
// the pipeline, and platform adapters.
package message

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Platform identifies a chat backend.
type Platform string

const (
	Discord  Platform = "DISCORD"
	Telegram Platform = "TELEGRAM"
	OneBot   Platform = "ONEBOT"
	Console  Platform = "CONSOLE"
)

// Address identifies a chat on a platform.
type Address struct {
	// Platform is the chat backend.
	Platform Platform
	// ChatID is the platform's identifier for the chat. For private chats it
	// is usually the peer's user ID.
	ChatID int64
	// Group indicates a group chat as opposed to a private conversation.
	Group bool
}

// ChatKey returns a stable key for the address in the form
// PLATFORM:g:id for groups or PLATFORM:p:id for private chats.
func (a Address) ChatKey() string {
	k := "p"
	if a.Group {
		k = "g"
	}
	return string(a.Platform) + ":" + k + ":" + strconv.FormatInt(a.ChatID, 10)
}

func (a Address) String() string {
	return a.ChatKey()
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ParseChatKey parses a key produced by [Address.ChatKey].
func ParseChatKey(key string) (Address, error) {
	p, rest, ok := strings.Cut(key, ":")
	if !ok || p == "" {
		return Address{}, fmt.Errorf("malformed chat key %q", key)
	}
	g, id, ok := strings.Cut(rest, ":")
	if !ok {
		return Address{}, fmt.Errorf("malformed chat key %q", key)
	}
	var group bool
	switch strings.ToLower(g) {
	case "g":
		group = true
	case "p": // do nothing
	default:
		return Address{}, fmt.Errorf("malformed chat kind in key %q", key)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Address{}, fmt.Errorf("malformed chat id in key %q: %w", key, err)
	}
	return Address{Platform: Platform(p), ChatID: n, Group: group}, nil
}

// Sender describes the author of an inbound message.
type Sender struct {
	// ID is the platform user ID.
	ID int64
	// Username is the login or handle, if the platform has one.
	Username string
	// DisplayName is the name shown in chat.
	DisplayName string
	// Bot indicates whether the sender is a bot account.
	Bot bool
}

// UnknownSender is the sender used when a platform gives no author.
func UnknownSender() Sender {
	return Sender{ID: -1, DisplayName: "unknown"}
}

// Name returns the best available human-readable name.
func (s Sender) Name() string {
	switch {
	case s.DisplayName != "":
		return s.DisplayName
	case s.Username != "":
		return s.Username
	default:
		return strconv.FormatInt(s.ID, 10)
	}
}

// Chat is an address with its display title.
type Chat struct {
	Addr  Address
	Title string
}

// Meta is platform metadata about an inbound message.
type Meta struct {
	// MessageID is the platform message ID. Platforms with string IDs store
	// them in RawID instead.
	MessageID int64
	// RawID is the message ID when the platform does not use integers.
	RawID string
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64
	// ReplyTo is the ID of the message this one replies to, or zero.
	ReplyTo int64
	// RawType is the platform's own name for the event type.
	RawType string
}

// Time returns the message timestamp.
func (m Meta) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Inbound is a message received from a platform.
// Parts are in the order the platform presented them.
type Inbound struct {
	Addr   Address
	Sender Sender
	Chat   Chat
	Meta   Meta
	Parts  []Part
}

// Text returns the primary text of the message.
func (m *Inbound) Text() string {
	return PrimaryText(m.Parts)
}

// DeliveryHints tell senders how a platform should deliver an outbound
// message's parts.
type DeliveryHints struct {
	// PreserveOrder requires parts to be delivered in order.
	PreserveOrder bool
	// PreferSingle asks the sender to merge parts into one platform message
	// where possible.
	PreferSingle bool
	// PreferCaption asks the sender to attach text to the following media
	// as a caption instead of sending it separately.
	PreferCaption bool
}

// DefaultHints returns the hints used when none are given.
func DefaultHints() DeliveryHints {
	return DeliveryHints{PreserveOrder: true, PreferCaption: true}
}

// Outbound is a message to send to a chat.
// Senders should avoid delivering an outbound message with no parts.
type Outbound struct {
	Addr  Address
	Parts []Part
	Hints DeliveryHints
}

// New creates an outbound message with the given parts.
func New(addr Address, parts ...Part) Outbound {
	return Outbound{Addr: addr, Parts: slices.Clone(parts), Hints: DefaultHints()}
}

// Text creates a text message.
func Text(addr Address, text string) Outbound {
	return New(addr, TextPart{Text: text})
}

// formatString is a type to prevent misuse of format strings passed to [Format].
type formatString string

// Format constructs a text message from a format string literal and
// formatting arguments.
func Format(addr Address, f formatString, args ...any) Outbound {
	return Text(addr, strings.TrimSpace(fmt.Sprintf(string(f), args...)))
}

// ImagePNG creates a message holding a single PNG image.
func ImagePNG(addr Address, filename string, b []byte) Outbound {
	return New(addr, ImageBytes(filename, b, "image/png"))
}

// With returns a copy of m with parts appended.
// The original message's part list is never modified.
func (m Outbound) With(parts ...Part) Outbound {
	m.Parts = append(slices.Clip(m.Parts), parts...)
	return m
}

// Empty reports whether the message has no parts.
func (m Outbound) Empty() bool {
	return len(m.Parts) == 0
}

// Text returns all text and captions in the message joined by newlines.
func (m Outbound) Text() string {
	return AllText(m.Parts)
}

package command

import (
	"log/slog"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/state"
)

// Sink receives messages that commands send.
type Sink func(message.Outbound)

// Source is the caller of a command: the message that invoked it, or just
// an address for commands run without one.
// Replies go to the source's sink. A Source must not be retained after the
// command returns.
type Source struct {
	addr message.Address
	in   *message.Inbound
	sink Sink
}

// ForInbound creates a source for an inbound message.
func ForInbound(in *message.Inbound, sink Sink) *Source {
	return &Source{addr: in.Addr, in: in, sink: sink}
}

// ForAddress creates a source for a chat with no inbound message.
func ForAddress(addr message.Address, sink Sink) *Source {
	return &Source{addr: addr, sink: sink}
}

// Addr returns the chat where the command was invoked.
func (s *Source) Addr() message.Address {
	return s.addr
}

// Inbound returns the invoking message, or nil if there is none.
func (s *Source) Inbound() *message.Inbound {
	return s.in
}

// Sender returns the author of the invoking message, or
// [message.UnknownSender] if there is none.
func (s *Source) Sender() message.Sender {
	if s.in == nil {
		return message.UnknownSender()
	}
	return s.in.Sender
}

func (s *Source) ChatID() int64 {
	return s.addr.ChatID
}

func (s *Source) Group() bool {
	return s.addr.Group
}

// PrimaryText returns the text of the invoking message.
func (s *Source) PrimaryText() string {
	if s.in == nil {
		return ""
	}
	return s.in.Text()
}

// Target returns the preference target for the source.
func (s *Source) Target() state.Target {
	return state.For(s.addr, s.Sender())
}

// Reply sends text to the source's chat.
func (s *Source) Reply(text string) {
	s.ReplyMessage(message.Text(s.addr, text))
}

// ReplyMessage sends a message. If the message has no address, it goes to
// the source's chat.
func (s *Source) ReplyMessage(out message.Outbound) {
	if out.Addr.IsZero() {
		out.Addr = s.addr
	}
	s.sink(out)
}

// ReplyParts sends parts as a single message to the source's chat.
func (s *Source) ReplyParts(parts ...message.Part) {
	s.ReplyMessage(message.New(s.addr, parts...))
}

// ReplyImage sends an image.
func (s *Source) ReplyImage(ref message.MediaRef, caption string) {
	s.ReplyParts(message.Image{Ref: ref, Caption: caption})
}

// ReplyFile sends a file.
func (s *Source) ReplyFile(ref message.MediaRef, name, caption string) {
	s.ReplyParts(message.File{Ref: ref, Name: name, Caption: caption})
}

// SendImagePNG sends PNG bytes as an image.
func (s *Source) SendImagePNG(filename string, b []byte) {
	s.ReplyMessage(message.ImagePNG(s.addr, filename, b))
}

// Send sends a message to another chat.
func (s *Source) Send(to message.Address, out message.Outbound) {
	out.Addr = to
	s.sink(out)
}

// LogValue implements slog.LogValuer.
func (s *Source) LogValue() slog.Value {
	snd := s.Sender()
	return slog.GroupValue(
		slog.String("chat", s.addr.ChatKey()),
		slog.Int64("sender", snd.ID),
		slog.String("name", snd.Name()),
	)
}

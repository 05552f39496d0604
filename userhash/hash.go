// Package userhash provides an obfuscation layer for senders in chats.
//
// A userhash allows messages from a given sender to be correlated within a
// chat, but not easily between chats. Specifically, a userhash is based on
// HMAC with the platform, user ID, chat key, and a value derived from the
// time as the message content.
//
// The key used to generate hashes must be preserved across program instances.
//
// Userhashes are not intended to guarantee privacy.
package userhash

import (
	"crypto/hmac"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/chiloven/lukosbot/message"
	"github.com/chiloven/lukosbot/tpool"
)

// Size is the size of a userhash in bytes.
const Size = 28

// TimeQuantum is the duration for which hashing a sender and chat gives the
// same result.
const TimeQuantum = 15 * time.Minute

var (
	// ErrShortHash is an error returned when scanning a userhash that is too
	// short.
	ErrShortHash = errors.New("short userhash")
	// ErrHashType is an error returned when scanning a userhash from a type
	// that cannot be handled.
	ErrHashType = errors.New("bad type for userhash")
)

// Hash is an obfuscated hash identifying a sender in a chat.
type Hash [Size]byte

// Scan implements sql.Scanner.
func (h *Hash) Scan(src any) error {
	switch src := src.(type) {
	case []byte:
		n := copy(h[:], src)
		if n != Size {
			return ErrShortHash
		}
	default:
		return ErrHashType
	}
	return nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// LogValue implements slog.LogValuer with an abbreviated hash.
func (h Hash) LogValue() slog.Value {
	return slog.StringValue(hex.EncodeToString(h[:6]))
}

// A Hasher creates Hash values. It is safe for concurrent use.
type Hasher struct {
	macs *tpool.Pool[hash.Hash]
}

// New creates a Hasher.
func New(prk []byte) *Hasher {
	prk = append([]byte(nil), prk...)
	return &Hasher{
		macs: tpool.Of(func() hash.Hash { return hmac.New(sha3.New224, prk) }),
	}
}

// Hash computes a userhash for uid on platform p speaking in the chat with
// the given key and writes it into dst.
func (h *Hasher) Hash(dst *Hash, p message.Platform, uid int64, where string, when time.Time) *Hash {
	mac := h.macs.Get()
	defer h.macs.Put(mac)
	mac.Reset()
	t := when.UnixNano() / TimeQuantum.Nanoseconds()
	b := make([]byte, 8, 8+len(p)+1+20+1+len(where))
	binary.LittleEndian.PutUint64(b, uint64(t))
	b = append(b, p...)
	b = append(b, ':')
	b = strconv.AppendInt(b, uid, 10)
	b = append(b, 0xaa)
	b = append(b, where...)
	mac.Write(b)
	return (*Hash)(mac.Sum(dst[:0]))
}

// Sender computes the userhash of the sender of a message.
func (h *Hasher) Sender(dst *Hash, in *message.Inbound, when time.Time) *Hash {
	return h.Hash(dst, in.Addr.Platform, in.Sender.ID, in.Addr.ChatKey(), when)
}

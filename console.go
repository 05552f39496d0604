package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chiloven/lukosbot/message"
)

// consoleUser is the sender ID of console input.
const consoleUser = 0

// consoleAddr is the chat of console input.
var consoleAddr = message.Address{Platform: message.Console, ChatID: consoleUser}

// consolePlatform reads lines as private messages and writes replies.
type consolePlatform struct {
	log *slog.Logger
	in  io.Reader
	// out receives reply text.
	out io.Writer
	// dir is where images and files are written. If empty, they are only
	// described.
	dir string

	mu sync.Mutex
}

func (c *consolePlatform) Platform() message.Platform { return message.Console }

// Run submits each line of input until the input ends or ctx is done.
func (c *consolePlatform) Run(ctx context.Context, submit func(*message.Inbound) bool) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- sc.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			// Input ended. Keep serving replies until shutdown.
			if err != nil {
				return fmt.Errorf("couldn't read console: %w", err)
			}
			<-ctx.Done()
			return ctx.Err()
		case s := <-lines:
			if !submit(consoleInbound(s)) {
				c.log.WarnContext(ctx, "console message dropped")
			}
		}
	}
}

// consoleInbound creates a message for a line of console input.
func consoleInbound(line string) *message.Inbound {
	return &message.Inbound{
		Addr:   consoleAddr,
		Sender: message.Sender{ID: consoleUser, Username: "console", DisplayName: "console"},
		Chat:   message.Chat{Addr: consoleAddr, Title: "console"},
		Meta: message.Meta{
			RawID:     uuid.NewString(),
			Timestamp: time.Now().UnixMilli(),
			RawType:   "line",
		},
		Parts: []message.Part{message.TextPart{Text: line}},
	}
}

func (c *consolePlatform) Send(ctx context.Context, out message.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range out.Parts {
		var err error
		switch p := p.(type) {
		case message.TextPart:
			_, err = fmt.Fprintln(c.out, p.Text)
		case message.Image:
			err = c.media(p.Ref, p.Name, p.Caption)
		case message.File:
			err = c.media(p.Ref, p.Name, p.Caption)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *consolePlatform) media(ref message.MediaRef, name, caption string) error {
	if caption != "" {
		if _, err := fmt.Fprintln(c.out, caption); err != nil {
			return err
		}
	}
	switch ref := ref.(type) {
	case message.BytesRef:
		name = cmpOr(name, ref.Name, "file")
		if c.dir == "" {
			_, err := fmt.Fprintf(c.out, "[%s, %d bytes]\n", name, len(ref.Bytes))
			return err
		}
		path := filepath.Join(c.dir, filepath.Base(name))
		if err := os.WriteFile(path, ref.Bytes, 0o644); err != nil {
			return fmt.Errorf("couldn't write %s: %w", name, err)
		}
		_, err := fmt.Fprintf(c.out, "[%s]\n", path)
		return err
	case message.URLRef:
		_, err := fmt.Fprintf(c.out, "[%s]\n", ref.URL)
		return err
	case message.PlatformFileRef:
		_, err := fmt.Fprintf(c.out, "[%s file %s]\n", ref.Platform, ref.FileID)
		return err
	}
	return nil
}

// Package telegram is a minimal client for the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// DefaultBase is the Bot API server used when a client has none.
const DefaultBase = "https://api.telegram.org"

// Client calls Bot API methods.
type Client struct {
	// Token is the bot token.
	Token string
	// Base is the API server. If empty, DefaultBase is used.
	Base string
	// HTTP is the client used for requests. If nil, [http.DefaultClient] is
	// used.
	HTTP *http.Client
}

// Error is a failed method call.
type Error struct {
	Method string
	Code   int
	// Description is Telegram's message.
	Description string
	// RetryAfter is set when the bot is being rate limited.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("telegram %s failed with %d: %s", e.Method, e.Code, e.Description)
}

type envelope struct {
	OK          bool           `json:"ok"`
	Result      jsontext.Value `json:"result"`
	Description string         `json:"description"`
	ErrorCode   int            `json:"error_code"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Chat is a Telegram chat.
type Chat struct {
	ID int64 `json:"id"`
	// Type is one of private, group, supergroup, or channel.
	Type     string `json:"type"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

// PhotoSize is one size of a photo.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

// Document is a general file.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// Message is a Telegram message.
type Message struct {
	MessageID int64 `json:"message_id"`
	From      *User `json:"from"`
	Chat      Chat  `json:"chat"`
	// Date is the send time in Unix seconds.
	Date     int64       `json:"date"`
	Text     string      `json:"text"`
	Caption  string      `json:"caption"`
	Photo    []PhotoSize `json:"photo"`
	Document *Document   `json:"document"`
	ReplyTo  *Message    `json:"reply_to_message"`

	Extra jsontext.Value `json:",unknown"`
}

// Update is an incoming update.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message"`
	EditedMessage *Message `json:"edited_message"`

	Extra jsontext.Value `json:",unknown"`
}

// Group reports whether the message is from a group chat.
func (c Chat) Group() bool {
	return c.Type != "private"
}

func (c *Client) endpoint(method string) string {
	base := c.Base
	if base == "" {
		base = DefaultBase
	}
	return base + "/bot" + c.Token + "/" + method
}

func (c *Client) client() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

// call posts a method with a form or multipart body and decodes its result
// into r.
func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader, r any) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(method), body)
	if err != nil {
		return fmt.Errorf("couldn't make %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.client().Do(req)
	if err != nil {
		// The URL contains the token, so don't let it reach logs.
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return fmt.Errorf("couldn't call %s: %w", method, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.UnmarshalRead(resp.Body, &env); err != nil {
		return fmt.Errorf("couldn't decode %s response (status %s): %w", method, resp.Status, err)
	}
	if !env.OK {
		return &Error{
			Method:      method,
			Code:        env.ErrorCode,
			Description: env.Description,
			RetryAfter:  time.Duration(env.Parameters.RetryAfter) * time.Second,
		}
	}
	if r == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, r); err != nil {
		return fmt.Errorf("couldn't decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) form(ctx context.Context, method string, v url.Values, r any) error {
	return c.call(ctx, method, "application/x-www-form-urlencoded", bytes.NewBufferString(v.Encode()), r)
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.form(ctx, "getMe", url.Values{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates with IDs at least offset, waiting up to
// timeout for one to arrive. The context deadline should exceed timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	v := url.Values{
		"offset":          {strconv.FormatInt(offset, 10)},
		"timeout":         {strconv.Itoa(int(timeout / time.Second))},
		"allowed_updates": {`["message"]`},
	}
	var u []Update
	if err := c.form(ctx, "getUpdates", v, &u); err != nil {
		return nil, err
	}
	return u, nil
}

// SendMessage sends a text message. If replyTo is nonzero, the message
// replies to it.
func (c *Client) SendMessage(ctx context.Context, chat int64, text string, replyTo int64) (*Message, error) {
	v := url.Values{
		"chat_id": {strconv.FormatInt(chat, 10)},
		"text":    {text},
	}
	if replyTo != 0 {
		v.Set("reply_parameters", fmt.Sprintf(`{"message_id":%d,"allow_sending_without_reply":true}`, replyTo))
	}
	var m Message
	if err := c.form(ctx, "sendMessage", v, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// InputFile is a file to send. Exactly one of Ref or Data should be set.
type InputFile struct {
	// Ref is a file_id or URL that Telegram fetches itself.
	Ref string
	// Name and Data give a file to upload.
	Name string
	Data []byte
}

// SendPhoto sends an image.
func (c *Client) SendPhoto(ctx context.Context, chat int64, photo InputFile, caption string) (*Message, error) {
	return c.sendFile(ctx, "sendPhoto", "photo", chat, photo, caption)
}

// SendDocument sends a general file.
func (c *Client) SendDocument(ctx context.Context, chat int64, doc InputFile, caption string) (*Message, error) {
	return c.sendFile(ctx, "sendDocument", "document", chat, doc, caption)
}

func (c *Client) sendFile(ctx context.Context, method, field string, chat int64, f InputFile, caption string) (*Message, error) {
	var m Message
	if f.Data == nil {
		v := url.Values{
			"chat_id": {strconv.FormatInt(chat, 10)},
			field:     {f.Ref},
		}
		if caption != "" {
			v.Set("caption", caption)
		}
		if err := c.form(ctx, method, v, &m); err != nil {
			return nil, err
		}
		return &m, nil
	}
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	w.WriteField("chat_id", strconv.FormatInt(chat, 10))
	if caption != "" {
		w.WriteField("caption", caption)
	}
	name := f.Name
	if name == "" {
		name = field
	}
	p, err := w.CreateFormFile(field, name)
	if err != nil {
		return nil, fmt.Errorf("couldn't create %s upload: %w", method, err)
	}
	p.Write(f.Data)
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("couldn't finish %s upload: %w", method, err)
	}
	if err := c.call(ctx, method, w.FormDataContentType(), &b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

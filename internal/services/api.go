package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/MegaGrindStone/webchat/internal/models"
	"github.com/h2non/filetype"
	"github.com/tmaxmax/go-sse"
)

// API is a client of the chat backend. It implements every endpoint the terminal client consumes: chat
// history and management, the streaming reply endpoint, the static fallback endpoint, uploads, and
// the profile form.
type API struct {
	baseURL string
	headers map[string]string

	client *http.Client

	logger *slog.Logger
}

// StatusError is returned when the backend answers with an unexpected status code.
type StatusError struct {
	Code int
	Body string
}

type messagesResponse struct {
	Title    string           `json:"title"`
	Messages []models.Message `json:"messages"`
}

type chatRequest struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

type chatResponse struct {
	OK     bool            `json:"ok"`
	ChatID json.RawMessage `json:"chat_id"`
	Title  string          `json:"title"`
	Reply  string          `json:"reply"`
	Error  string          `json:"error"`
}

type streamPayload struct {
	Chunk string `json:"chunk"`
	Done  bool   `json:"done"`
	Full  string `json:"full"`
}

const (
	streamErrorEventType = "stream_error"

	// defaultChatTitle is shown when the backend returns a chat without a title.
	defaultChatTitle = "Chat"

	sniffLen = 261
)

// NewAPI creates a new API client for the backend at baseURL. The headers are sent with every
// request, which is how a session cookie obtained elsewhere can be passed along.
func NewAPI(baseURL string, headers map[string]string, logger *slog.Logger) (API, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return API{}, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return API{}, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	return API{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "api")),
	}, nil
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

func chatPath(chatID string, suffix string) string {
	return "/chats/" + url.PathEscape(chatID) + suffix
}

// Messages retrieves the title and the full message history of the chat.
func (a API) Messages(ctx context.Context, chatID string) (models.Chat, error) {
	var res messagesResponse
	if err := a.doJSON(ctx, http.MethodGet, chatPath(chatID, "/messages"), nil, &res); err != nil {
		return models.Chat{}, err
	}

	title := res.Title
	if title == "" {
		title = defaultChatTitle
	}
	return models.Chat{
		ID:       chatID,
		Title:    title,
		Messages: res.Messages,
	}, nil
}

// CreateChat creates a new chat with the given title and returns it.
func (a API) CreateChat(ctx context.Context, title string) (models.Chat, error) {
	var res chatResponse
	if err := a.doJSON(ctx, http.MethodPost, "/chats", chatRequest{Title: title}, &res); err != nil {
		return models.Chat{}, err
	}
	if !res.OK {
		return models.Chat{}, fmt.Errorf("backend refused to create chat: %s", res.Error)
	}

	id, err := rawID(res.ChatID)
	if err != nil {
		return models.Chat{}, fmt.Errorf("invalid chat id: %w", err)
	}
	return models.Chat{ID: id, Title: res.Title}, nil
}

// RenameChat renames the chat and returns the title the backend settled on. The backend keeps the
// old title when the new one is blank.
func (a API) RenameChat(ctx context.Context, chatID, title string) (string, error) {
	var res chatResponse
	if err := a.doJSON(ctx, http.MethodPost, chatPath(chatID, "/rename"), chatRequest{Title: title}, &res); err != nil {
		return "", err
	}
	return res.Title, nil
}

// DeleteChat deletes the chat with all of its messages.
func (a API) DeleteChat(ctx context.Context, chatID string) error {
	return a.doJSON(ctx, http.MethodDelete, chatPath(chatID, ""), nil, nil)
}

// Stream sends text to the chat and returns an iterator over the events of the reply stream. Transport
// failures, including a non-OK status, are yielded as errors. Payloads that are not valid JSON are
// logged and skipped. The iterator ends when the backend closes the stream or the consumer stops.
func (a API) Stream(ctx context.Context, chatID, text string) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		q := url.Values{"message": {text}}
		req, err := a.newRequest(ctx, http.MethodGet, chatPath(chatID, "/send?"+q.Encode()), nil)
		if err != nil {
			yield(models.StreamEvent{}, err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := a.client.Do(req)
		if err != nil {
			yield(models.StreamEvent{}, fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield(models.StreamEvent{}, statusError(resp))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield(models.StreamEvent{}, fmt.Errorf("error reading stream: %w", err))
				return
			}

			switch ev.Type {
			case streamErrorEventType:
				a.logger.Debug("Backend signaled stream error", slog.String("data", ev.Data))
				if !yield(models.StreamEvent{Kind: models.EventStreamError}, nil) {
					return
				}
				continue
			case "", "message":
			default:
				a.logger.Debug("Ignoring event", slog.String("type", ev.Type))
				continue
			}

			var p streamPayload
			if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
				a.logger.Warn("Dropping malformed stream payload",
					slog.String("data", ev.Data),
					slog.String(errLoggerKey, err.Error()))
				continue
			}

			// A payload carrying a chunk is a chunk even if it claims to be done.
			e := models.StreamEvent{Kind: models.EventChunk, Chunk: p.Chunk}
			if p.Chunk == "" && p.Done {
				e = models.StreamEvent{Kind: models.EventDone, Full: p.Full}
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Send is the static counterpart of Stream: it sends text to the chat and waits for the whole reply.
// It makes a single attempt.
func (a API) Send(ctx context.Context, chatID, text string) (string, error) {
	var res chatResponse
	if err := a.doJSON(ctx, http.MethodPost, chatPath(chatID, "/chat"), chatRequest{Message: text}, &res); err != nil {
		return "", err
	}
	return res.Reply, nil
}

// Upload attaches the file read from r to the chat. The content type of the part is sniffed from the
// leading bytes of the file. The backend's JSON acknowledgment is returned undecoded beyond a map.
func (a API) Upload(ctx context.Context, chatID, name string, r io.Reader) (map[string]any, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	head = head[:n]

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", sniffContentType(name, head))
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, io.MultiReader(bytes.NewReader(head), r)); err != nil {
		return nil, fmt.Errorf("failed to write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := a.newRequest(ctx, http.MethodPost, "/upload/"+url.PathEscape(chatID), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var ack map[string]any
	if err := a.do(req, &ack); err != nil {
		return nil, err
	}
	return ack, nil
}

// UpdateProfile posts the profile form with the display name and the theme.
func (a API) UpdateProfile(ctx context.Context, displayName, theme string) error {
	form := url.Values{
		"display_name": {displayName},
		"theme":        {theme},
	}
	req, err := a.newRequest(ctx, http.MethodPost, "/profile", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// The backend answers the form with a redirect to an HTML page, so there is nothing to decode.
	return a.do(req, nil)
}

func (a API) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (a API) doJSON(ctx context.Context, method, path string, reqBody, resBody any) error {
	var body io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := a.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return a.do(req, resBody)
}

func (a API) do(req *http.Request, resBody any) error {
	a.logger.Debug("Request", slog.String("method", req.Method), slog.String("url", req.URL.String()))

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if resBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(resBody); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(body)),
	}
}

func rawID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(raw), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func sniffContentType(name string, head []byte) string {
	kind, err := filetype.Match(head)
	if err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if strings.HasSuffix(strings.ToLower(name), ".txt") {
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

const errLoggerKey = "err"

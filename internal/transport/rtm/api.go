package rtm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/soyeahso/dankbot/internal/domain"
)

// apiResult is implemented by every response type through the embedded
// apiResponse.
type apiResult interface {
	result() apiResponse
}

func (r apiResponse) result() apiResponse { return r }

// call posts a form-encoded Web API request and decodes the JSON reply
// into out, which must embed apiResponse.
func (t *Transport) call(ctx context.Context, method string, form url.Values, out apiResult) error {
	if form == nil {
		form = url.Values{}
	}
	return t.do(ctx, method, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", out)
}

func (t *Transport) do(ctx context.Context, method string, body io.Reader, contentType string, out apiResult) error {
	endpoint := strings.TrimRight(t.cfg.URL, "/") + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+t.cfg.Token)

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", method, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	if r := out.result(); !r.OK {
		return fmt.Errorf("%s: %s", method, r.Error)
	}
	return nil
}

// React adds an emoji reaction through reactions.add.
func (t *Transport) React(ctx context.Context, msg domain.MessageRef, emoji string) error {
	form := url.Values{
		"channel":   {msg.ChannelID},
		"timestamp": {msg.ID},
		"name":      {strings.Trim(emoji, ":")},
	}
	var resp apiResponse
	return t.call(ctx, "reactions.add", form, &resp)
}

// OpenDirect opens (or finds) the direct-message channel of a user.
func (t *Transport) OpenDirect(ctx context.Context, userID string) (string, error) {
	var resp struct {
		apiResponse
		Channel entity `json:"channel"`
	}
	if err := t.call(ctx, "conversations.open", url.Values{"users": {userID}}, &resp); err != nil {
		return "", err
	}
	if resp.Channel.ID == "" {
		return "", fmt.Errorf("conversations.open: no channel for user %s", userID)
	}
	return resp.Channel.ID, nil
}

// Upload posts a local file through files.upload.
func (t *Transport) Upload(ctx context.Context, channelID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("files.upload: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("channels", channelID); err != nil {
		return err
	}
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("files.upload: reading %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	var resp apiResponse
	return t.do(ctx, "files.upload", &body, w.FormDataContentType(), &resp)
}

const historyPageSize = 200

// HistoryPage implements domain.Archive through conversations.history.
func (t *Transport) HistoryPage(ctx context.Context, channelID, cursor string) (domain.HistoryPage, error) {
	form := url.Values{
		"channel": {channelID},
		"limit":   {strconv.Itoa(historyPageSize)},
	}
	if cursor != "" {
		form.Set("cursor", cursor)
	}
	var resp struct {
		apiResponse
		Messages []frame `json:"messages"`
		Metadata struct {
			NextCursor string `json:"next_cursor"`
		} `json:"response_metadata"`
	}
	if err := t.call(ctx, "conversations.history", form, &resp); err != nil {
		return domain.HistoryPage{}, err
	}

	channel := json.RawMessage(strconv.Quote(channelID))
	page := domain.HistoryPage{Next: resp.Metadata.NextCursor}
	for i := range resp.Messages {
		f := &resp.Messages[i]
		if f.Type == "" {
			f.Type = TypeMessage
		}
		f.Channel = channel
		if ev, ok := f.event(); ok {
			page.Messages = append(page.Messages, ev)
		}
	}
	return page, nil
}

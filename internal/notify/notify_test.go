package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "exactly10!", Truncate("exactly10!", 10))
	require.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	require.Equal(t, "жжж...", Truncate(strings.Repeat("ж", 8), 6))

	long := strings.Repeat("a", MaxLength+50)
	got := Truncate(long, MaxLength)
	require.Len(t, got, MaxLength)
	require.True(t, strings.HasSuffix(got, "..."))
}

type sentMessage struct {
	path   string
	chatID string
	text   string
}

// botAPI fakes the Bot API; reply is written for every call.
func botAPI(t *testing.T, status int, reply string) (*httptest.Server, *[]sentMessage) {
	t.Helper()
	var sent []sentMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		msg := sentMessage{path: r.URL.Path}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body struct {
				ChatID any    `json:"chat_id"`
				Text   string `json:"text"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			msg.chatID = fmt.Sprint(body.ChatID)
			msg.text = body.Text
		} else {
			_ = r.ParseMultipartForm(1 << 20)
			msg.chatID = r.FormValue("chat_id")
			msg.text = r.FormValue("text")
		}
		sent = append(sent, msg)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &sent
}

const sentOK = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`

func TestTelegramNotify(t *testing.T) {
	srv, sent := botAPI(t, http.StatusOK, sentOK)

	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: "42", BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	require.Empty(t, *sent, "no getMe call at construction")

	require.NoError(t, tg.Notify(context.Background(), "Freezing path /a Succeeded"))
	require.Len(t, *sent, 1)
	require.Equal(t, "/bot123:abc/sendMessage", (*sent)[0].path)
	require.Equal(t, "42", (*sent)[0].chatID)
	require.Equal(t, "Freezing path /a Succeeded", (*sent)[0].text)
}

func TestTelegramNotifyDeliversFullLengthText(t *testing.T) {
	srv, sent := botAPI(t, http.StatusOK, sentOK)
	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: "42", BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	text := "Freezing path /" + strings.Repeat("d", MaxLength-len("Freezing path / Failed")) + " Failed"
	require.Len(t, text, MaxLength)
	require.NoError(t, tg.Notify(context.Background(), text))
	require.Equal(t, text, (*sent)[0].text)
}

func TestTelegramNotifyReportsAPIError(t *testing.T) {
	srv, _ := botAPI(t, http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)

	tg, err := NewTelegram(TelegramConfig{Token: "7:t0ken", ChatID: "1", BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	err = tg.Notify(context.Background(), "x")
	require.ErrorContains(t, err, "chat not found")
}

func TestTelegramNotifyRedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tg, err := NewTelegram(TelegramConfig{Token: "123:secret", ChatID: "1", BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	err = tg.Notify(context.Background(), "x")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "123:secret")
}

func TestTelegramConfigFromEnv(t *testing.T) {
	t.Setenv("FREEZER_TELEGRAM_BOT_TOKEN", "")
	t.Setenv("FREEZER_TELEGRAM_CHAT_ID", "")
	_, ok, err := TelegramConfigFromEnv(TelegramConfig{})
	require.NoError(t, err)
	require.False(t, ok)

	t.Setenv("FREEZER_TELEGRAM_BOT_TOKEN", "tok")
	_, _, err = TelegramConfigFromEnv(TelegramConfig{})
	require.Error(t, err, "chat id missing")

	t.Setenv("FREEZER_TELEGRAM_CHAT_ID", "99")
	cfg, ok, err := TelegramConfigFromEnv(TelegramConfig{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, defaultTelegramAPI, cfg.BaseURL)

	t.Setenv("FREEZER_TELEGRAM_BOT_TOKEN", "")
	cfg, ok, err = TelegramConfigFromEnv(TelegramConfig{Token: "file-token", ChatID: "7"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "file-token", cfg.Token)
	require.Equal(t, "99", cfg.ChatID, "env overrides file")
}

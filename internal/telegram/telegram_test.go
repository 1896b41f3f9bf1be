package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbrief/internal/delivery"
	"github.com/deusflow/newsbrief/internal/news"
)

func TestDisplay_SendsPlainText(t *testing.T) {
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "-100", body["chat_id"])
		require.Nil(t, body["parse_mode"])
		texts = append(texts, body["text"].(string))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "TOKEN", "-100")
	require.NoError(t, s.Display(context.Background(), news.Script{Body: "Good night, <all> quiet & calm."}))
	require.Equal(t, []string{"Good night, <all> quiet & calm."}, texts)
}

func TestDisplay_ErrorKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := NewSender(srv.URL, "TOKEN", "-100").Display(context.Background(), news.Script{Body: "hi"})
	var de *delivery.DeliveryError
	require.True(t, errors.As(err, &de))
	require.Equal(t, delivery.Rejected, de.Kind)
	require.Contains(t, err.Error(), "chat not found")
}

func TestDisplay_UnreachableDoesNotLeakToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewSender(url, "SECRET123", "-100").Display(context.Background(), news.Script{Body: "hi"})
	var de *delivery.DeliveryError
	require.True(t, errors.As(err, &de))
	require.Equal(t, delivery.Unreachable, de.Kind)
	require.NotContains(t, err.Error(), "SECRET123")
}

func TestSplit_OnParagraphs(t *testing.T) {
	p := strings.Repeat("a", 30)
	text := strings.Join([]string{p, p, p}, "\n\n")
	parts := Split(text, 70)
	require.Equal(t, []string{p + "\n\n" + p, p}, parts)
}

func TestSplit_RespectsLimit(t *testing.T) {
	text := strings.Repeat("слово ", 2000)
	for _, part := range Split(text, maxMessageRunes) {
		require.LessOrEqual(t, utf8.RuneCountInString(part), maxMessageRunes)
		require.NotEmpty(t, part)
	}
	require.Equal(t, []string{"short"}, Split("short", 10))
	require.Equal(t, []string{"abcde", "fghij"}, Split("abcdefghij", 5))
}

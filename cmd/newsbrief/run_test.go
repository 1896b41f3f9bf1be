package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbrief/internal/app"
	"github.com/deusflow/newsbrief/internal/delivery"
	"github.com/deusflow/newsbrief/internal/news"
)

func TestPrintReport(t *testing.T) {
	r := &app.Report{
		Result:   app.ResultDelivered,
		Duration: 1500 * time.Millisecond,
		Script:   &news.Script{Body: "Good morning, here is the news.", Source: news.SourceAI, Backend: "gemini"},
		Payload: news.Payload{Categories: []news.CategoryResult{
			{Category: "World"},
			{Category: "Sports", Err: errors.New("fetch Sports: network")},
		}},
		Outcomes: []delivery.Outcome{
			{Target: "speech:tts.cloud/media_player.kitchen", Status: delivery.Delivered},
			{Target: "display:telegram:42", Status: delivery.Failed, Reason: "HTTP 400"},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, r)
	out := buf.String()
	require.Contains(t, out, "Good morning, here is the news.\n")
	require.Contains(t, out, "source: ai (gemini)\n")
	require.Contains(t, out, "category Sports: fetch Sports: network\n")
	require.Contains(t, out, "delivered\n")
	require.Contains(t, out, "failed (HTTP 400)\n")
	require.Contains(t, out, "result: delivered in 1.5s\n")
	require.NotContains(t, out, "category World")
}

func TestMaskPassword(t *testing.T) {
	require.Equal(t, "postgres://brief:xxxxx@db:5432/news", maskPassword("postgres://brief:secret@db:5432/news"))
	require.Equal(t, "postgres://db/news", maskPassword("postgres://db/news"))
}

func TestCheck_FileStoreWithoutBriefing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "newsbrief.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories: [World]\nstate_path: "+filepath.Join(dir, "last.json")+"\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, check(context.Background(), &buf, path))
	require.Contains(t, buf.String(), "Config is valid")
	require.Contains(t, buf.String(), "World (https://news.google.com/")
	require.Contains(t, buf.String(), "no briefing delivered yet")
}

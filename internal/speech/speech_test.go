package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbrief/internal/delivery"
)

func TestSpeak_CallsTTSService(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/services/tts/speak", r.URL.Path)
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "token", "tts.google_en_com")
	require.Equal(t, "tts.google_en_com", c.Name())
	require.NoError(t, c.Speak(context.Background(), "Good morning,", "media_player.kitchen"))

	require.Equal(t, "tts.google_en_com", got["entity_id"])
	require.Equal(t, "media_player.kitchen", got["media_player_entity_id"])
	require.Equal(t, "Good morning,", got["message"])
	require.Equal(t, false, got["cache"])
}

func TestSpeak_ErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		want   delivery.Kind
	}{
		{http.StatusBadRequest, delivery.Rejected},
		{http.StatusUnauthorized, delivery.Rejected},
		{http.StatusBadGateway, delivery.Unreachable},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		err := NewClient(srv.URL, "t", "tts.x").Speak(context.Background(), "hi", "media_player.y")
		srv.Close()

		var de *delivery.DeliveryError
		require.True(t, errors.As(err, &de))
		require.Equal(t, tt.want, de.Kind, tt.status)
	}
}

func TestSpeak_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, "t", "tts.x").Speak(context.Background(), "hi", "media_player.y")
	var de *delivery.DeliveryError
	require.True(t, errors.As(err, &de))
	require.Equal(t, delivery.Unreachable, de.Kind)
}

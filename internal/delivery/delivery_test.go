package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbrief/internal/news"
)

type fakeSpeaker struct {
	name  string
	fail  map[string]error
	block map[string]bool

	mu    sync.Mutex
	calls []string
}

func (f *fakeSpeaker) Name() string { return f.name }

func (f *fakeSpeaker) Speak(ctx context.Context, text, player string) error {
	f.mu.Lock()
	f.calls = append(f.calls, player)
	f.mu.Unlock()
	if f.block[player] {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.fail[player]
}

type fakeDisplay struct {
	err error
	got news.Script
}

func (f *fakeDisplay) Name() string { return "telegram" }

func (f *fakeDisplay) Display(ctx context.Context, s news.Script) error {
	f.got = s
	return f.err
}

var script = news.Script{Body: "Good morning, all quiet.", Source: news.SourceTemplate}

func TestDeliver_OneFailedPlayerDoesNotBlockOthers(t *testing.T) {
	sp := &fakeSpeaker{name: "tts.cloud", fail: map[string]error{
		"media_player.kitchen": Errorf(Rejected, "media_player.kitchen", "entity not found"),
	}}
	o := New(Config{Speakers: []Speaker{sp}, MediaPlayers: []string{"media_player.kitchen", "media_player.office"}})

	out := o.Deliver(context.Background(), script, Options{})
	require.Len(t, out, 2)
	require.Equal(t, "speech:tts.cloud/media_player.kitchen", out[0].Target)
	require.Equal(t, Failed, out[0].Status)
	require.Equal(t, Rejected, out[0].Kind)
	require.Equal(t, Delivered, out[1].Status)
	require.True(t, Successful(out))
}

func TestDeliver_TargetsAreSpeakersTimesPlayersThenDisplays(t *testing.T) {
	a := &fakeSpeaker{name: "tts.a"}
	b := &fakeSpeaker{name: "tts.b"}
	d := &fakeDisplay{}
	o := New(Config{Speakers: []Speaker{a, b}, MediaPlayers: []string{"p1", "p2"}, Displays: []Displayer{d}})

	out := o.Deliver(context.Background(), script, Options{})
	var names []string
	for _, oc := range out {
		names = append(names, oc.Target)
	}
	require.Equal(t, []string{"speech:tts.a/p1", "speech:tts.a/p2", "speech:tts.b/p1", "speech:tts.b/p2", "display:telegram"}, names)
	require.Equal(t, script, d.got)
}

func TestDeliver_PrerollOnce(t *testing.T) {
	var sleeps []time.Duration
	sp := &fakeSpeaker{name: "tts.a"}
	o := New(Config{Speakers: []Speaker{sp}, MediaPlayers: []string{"p1", "p2", "p3"}, Preroll: 150 * time.Millisecond})
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	o.Deliver(context.Background(), script, Options{})
	require.Equal(t, []time.Duration{150 * time.Millisecond}, sleeps)

	sleeps = nil
	override := 2 * time.Second
	o.Deliver(context.Background(), script, Options{Preroll: &override})
	require.Equal(t, []time.Duration{2 * time.Second}, sleeps)

	sleeps = nil
	zero := time.Duration(0)
	o.Deliver(context.Background(), script, Options{Preroll: &zero})
	require.Empty(t, sleeps)
}

func TestDeliver_PlayerOverrideDoesNotMutateConfig(t *testing.T) {
	sp := &fakeSpeaker{name: "tts.a"}
	o := New(Config{Speakers: []Speaker{sp}, MediaPlayers: []string{"p1", "p2"}})

	out := o.Deliver(context.Background(), script, Options{MediaPlayers: []string{"p2"}})
	require.Len(t, out, 1)
	require.Equal(t, []string{"p2"}, sp.calls)

	out = o.Deliver(context.Background(), script, Options{})
	require.Len(t, out, 2)
}

func TestDeliver_TimeoutIsUnreachable(t *testing.T) {
	sp := &fakeSpeaker{name: "tts.a", block: map[string]bool{"slow": true}}
	o := New(Config{Speakers: []Speaker{sp}, MediaPlayers: []string{"slow", "fast"}, Timeout: 20 * time.Millisecond})

	out := o.Deliver(context.Background(), script, Options{})
	require.Equal(t, Failed, out[0].Status)
	require.Equal(t, Unreachable, out[0].Kind)
	require.Equal(t, Delivered, out[1].Status)
}

func TestDeliver_AllFailedIsUnsuccessful(t *testing.T) {
	d := &fakeDisplay{err: errors.New("connection reset")}
	o := New(Config{Displays: []Displayer{d}})

	out := o.Deliver(context.Background(), script, Options{})
	require.Len(t, out, 1)
	require.Equal(t, Unreachable, out[0].Kind)
	require.False(t, Successful(out))
}

func TestDeliver_NoFailedSinkIsRetried(t *testing.T) {
	sp := &fakeSpeaker{name: "tts.a", fail: map[string]error{"p1": errors.New("boom")}}
	o := New(Config{Speakers: []Speaker{sp}, MediaPlayers: []string{"p1"}})
	o.Deliver(context.Background(), script, Options{})
	require.Equal(t, []string{"p1"}, sp.calls)
}

func TestHasTargets(t *testing.T) {
	require.False(t, New(Config{}).HasTargets(Options{}))
	require.False(t, New(Config{Speakers: []Speaker{&fakeSpeaker{}}}).HasTargets(Options{}))
	require.True(t, New(Config{Speakers: []Speaker{&fakeSpeaker{}}, MediaPlayers: []string{"p"}}).HasTargets(Options{}))
	require.True(t, New(Config{Displays: []Displayer{&fakeDisplay{}}}).HasTargets(Options{}))

	withPlayer := New(Config{Speakers: []Speaker{&fakeSpeaker{}}, MediaPlayers: []string{"p"}})
	require.False(t, withPlayer.HasTargets(Options{MediaPlayers: []string{}}))
	require.True(t, New(Config{Speakers: []Speaker{&fakeSpeaker{}}}).HasTargets(Options{MediaPlayers: []string{"q"}}))
}

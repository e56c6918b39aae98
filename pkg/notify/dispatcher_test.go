package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/offline-shell/internal/testutil"
	"github.com/Sternrassler/offline-shell/pkg/clients"
	"github.com/Sternrassler/offline-shell/pkg/config"
)

type recordingNotifier struct {
	shown []DisplayOptions
	err   error
}

func (n *recordingNotifier) Show(ctx context.Context, opts DisplayOptions) error {
	if n.err != nil {
		return n.err
	}
	n.shown = append(n.shown, opts)
	return nil
}

func TestNewDispatcher_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewDispatcher should panic without notifier")
		}
	}()
	NewDispatcher(nil, clients.NewMemoryHost(), config.Default())
}

func TestDispatcher_HandlePush(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDispatcher(n, clients.NewMemoryHost(), config.Default())

	p, err := d.HandlePush(context.Background(), []byte(`{"title":"Quake","type":"emergency"}`))
	if err != nil {
		t.Fatalf("HandlePush() error = %v", err)
	}
	if p.State != PushDisplayed {
		t.Errorf("State = %s, want displayed", p.State)
	}
	if len(n.shown) != 1 || n.shown[0].Title != "Quake" || !n.shown[0].RequireInteraction {
		t.Errorf("shown = %+v", n.shown)
	}
}

func TestDispatcher_HandlePush_TextPayload(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDispatcher(n, clients.NewMemoryHost(), config.Default())

	p, err := d.HandlePush(context.Background(), []byte("not json {"))
	if err != nil {
		t.Fatalf("HandlePush() error = %v", err)
	}
	if p.State != PushDisplayed {
		t.Errorf("State = %s, want displayed", p.State)
	}
	if n.shown[0].Title != "SafeAlert NG" || n.shown[0].Body != "not json {" {
		t.Errorf("shown = %+v", n.shown[0])
	}
}

func TestDispatcher_HandlePush_NotifierFails(t *testing.T) {
	n := &recordingNotifier{err: errors.New("gateway down")}
	d := NewDispatcher(n, clients.NewMemoryHost(), config.Default())

	p, err := d.HandlePush(context.Background(), []byte(`{"title":"x"}`))
	if err == nil {
		t.Fatal("HandlePush() expected error")
	}
	if p.State != PushParsed {
		t.Errorf("State = %s, want parsed", p.State)
	}
}

func TestDispatcher_HandleClick(t *testing.T) {
	ctx := context.Background()

	t.Run("focus", func(t *testing.T) {
		host := clients.NewMemoryHost()
		host.Register(ctx, clients.Descriptor{ID: "w1", URL: "http://localhost:8080/safealert", Focusable: true})
		d := NewDispatcher(&recordingNotifier{}, host, config.Default())

		out, err := d.HandleClick(ctx, ActionView, ClickData{URL: "/"})
		if err != nil {
			t.Fatalf("HandleClick() error = %v", err)
		}
		if out.Kind != OutcomeFocus {
			t.Errorf("Kind = %s", out.Kind)
		}
		cmds := host.Commands()
		if len(cmds) != 1 || cmds[0].Op != clients.OpFocus || cmds[0].ClientID != "w1" {
			t.Errorf("Commands() = %+v", cmds)
		}
	})

	t.Run("broadcast", func(t *testing.T) {
		host := clients.NewMemoryHost()
		host.Register(ctx, clients.Descriptor{ID: "w1", URL: "http://localhost:8080/"})
		host.Register(ctx, clients.Descriptor{ID: "w2", URL: "http://localhost:8080/map"})
		d := NewDispatcher(&recordingNotifier{}, host, config.Default())

		if _, err := d.HandleClick(ctx, ActionHelp, ClickData{}); err != nil {
			t.Fatalf("HandleClick() error = %v", err)
		}
		cmds := host.Commands()
		if len(cmds) != 2 {
			t.Fatalf("Commands() = %+v", cmds)
		}
		for _, c := range cmds {
			if c.Op != clients.OpPostMessage || c.Message.Type != MessageTriggerSOS {
				t.Errorf("command = %+v", c)
			}
		}
	})

	t.Run("sos window", func(t *testing.T) {
		host := clients.NewMemoryHost()
		d := NewDispatcher(&recordingNotifier{}, host, config.Default())

		if _, err := d.HandleClick(ctx, ActionHelp, ClickData{}); err != nil {
			t.Fatalf("HandleClick() error = %v", err)
		}
		cmds := host.Commands()
		if len(cmds) != 1 || cmds[0].Op != clients.OpOpenWindow || cmds[0].URL != "/?action=sos" {
			t.Errorf("Commands() = %+v", cmds)
		}
	})

	t.Run("dismiss", func(t *testing.T) {
		host := clients.NewMemoryHost()
		d := NewDispatcher(&recordingNotifier{}, host, config.Default())

		if _, err := d.HandleClick(ctx, ActionDismiss, ClickData{}); err != nil {
			t.Fatalf("HandleClick() error = %v", err)
		}
		if len(host.Commands()) != 0 {
			t.Errorf("Commands() = %+v, want none", host.Commands())
		}
	})
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	if err := n.Show(context.Background(), BuildOptions(Descriptor{Title: "Fire"}, config.Notifications{})); err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"title":"Fire"`) {
		t.Errorf("log output = %s", buf.String())
	}
}

func TestNewRedisNotifier_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisNotifier should panic with nil redis client")
		}
	}()
	NewRedisNotifier(nil, "")
}

func TestRedisNotifier(t *testing.T) {
	client := testutil.StartRedis(t)
	ctx := context.Background()
	n := NewRedisNotifier(client, "test:")

	sub := client.Subscribe(ctx, n.Channel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	opts := BuildOptions(Descriptor{Title: "Flood", Type: TypeEmergency}, config.Default().Notifications)
	if err := n.Show(ctx, opts); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	select {
	case m := <-sub.Channel():
		var got DisplayOptions
		if err := json.Unmarshal([]byte(m.Payload), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Title != "Flood" || !got.RequireInteraction || len(got.Actions) != 2 {
			t.Errorf("published = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification published")
	}
}

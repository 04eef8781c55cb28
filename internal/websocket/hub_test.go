package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pickforge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	logger := testLogger()
	hub := NewHub(nil, logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub, url := startHub(t)
	nfl := dial(t, url)
	nba := dial(t, url)

	nfl.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, League: "NFL"})
	if ack := readMessage(t, nfl); ack.Type != MessageTypeSubscribed || ack.League != "nfl" {
		t.Fatalf("ack = %+v", ack)
	}
	nba.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, League: "nba"})
	readMessage(t, nba)

	waitFor(t, func() bool {
		return hub.SubscriberCount(domain.LeagueNFL) == 1 && hub.SubscriberCount(domain.LeagueNBA) == 1
	})

	home, away := 24, 17
	hub.BroadcastGameResult(domain.GameResult{
		ID: "G1", League: domain.LeagueNFL, Week: 5,
		Status: domain.GameStatusFinal, HomeScore: &home, AwayScore: &away,
	})
	hub.BroadcastStandings(domain.LeagueNBA, 0, []domain.Standing{{Rank: 1, UserID: "u1", Points: 2.5}})

	got := readMessage(t, nfl)
	if got.Type != MessageTypeGameResult || got.League != "nfl" {
		t.Fatalf("nfl message = %+v", got)
	}
	raw, _ := json.Marshal(got.Data)
	var res domain.GameResult
	if err := json.Unmarshal(raw, &res); err != nil || res.ID != "G1" || *res.HomeScore != 24 {
		t.Errorf("result payload = %s", raw)
	}

	got = readMessage(t, nba)
	if got.Type != MessageTypeStandingsUpdate || got.League != "nba" {
		t.Fatalf("nba message = %+v", got)
	}
	raw, _ = json.Marshal(got.Data)
	var update StandingsUpdate
	if err := json.Unmarshal(raw, &update); err != nil || len(update.Standings) != 1 || update.Week != 0 {
		t.Errorf("standings payload = %s", raw)
	}
}

func TestHub_PingAndErrors(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)

	tests := []struct {
		name string
		send string
		want string
	}{
		{"ping", `{"type":"ping"}`, MessageTypePong},
		{"unknown league", `{"type":"subscribe","league":"xfl"}`, MessageTypeError},
		{"not json", `hello`, MessageTypeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatal(err)
			}
			if got := readMessage(t, conn); got.Type != tt.want {
				t.Errorf("type = %q, want %q", got.Type, tt.want)
			}
		})
	}
}

func TestHub_DisconnectRemovesSubscriptions(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, League: "nhl"})
	readMessage(t, conn)
	waitFor(t, func() bool { return hub.SubscriberCount(domain.LeagueNHL) == 1 })

	conn.Close()
	waitFor(t, func() bool {
		return hub.TotalConnections() == 0 && hub.SubscriberCount(domain.LeagueNHL) == 0
	})
}

func TestHub_CallsReturnAfterStop(t *testing.T) {
	hub := NewHub(nil, testLogger())
	stopped := make(chan struct{})
	go func() {
		hub.Run()
		close(stopped)
	}()
	hub.Stop()
	<-stopped

	client := NewClient(hub, nil, testLogger())
	done := make(chan struct{})
	go func() {
		hub.Register(client)
		for i := 0; i < 100; i++ {
			hub.Subscribe(client, domain.LeagueNFL)
			hub.Unsubscribe(client, domain.LeagueNFL)
		}
		hub.Unregister(client)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub calls blocked after Stop")
	}
}

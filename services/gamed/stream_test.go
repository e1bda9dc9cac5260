package gamed

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"savingsgame/core/events"
	"savingsgame/core/types"
	"savingsgame/services/gamed/archive"
)

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	updates, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+1; i++ {
		hub.Emit(events.SavingsDeposit{Segment: uint64(i), Amount: big.NewInt(1)})
	}
	require.Zero(t, hub.Subscribers())

	received := 0
	for range updates {
		received++
	}
	require.Equal(t, subscriberBuffer, received)
	cancel()
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/events/stream", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return f.svc.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.fund(f.player, units(10))
	require.NoError(t, f.svc.Join(ctx, f.player, nil))

	var got []string
	for len(got) < 2 {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var evt types.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		got = append(got, evt.Type)
	}
	require.Equal(t, []string{events.TypeSavingsJoined, events.TypeSavingsDeposit}, got)
}

func TestArchivedEventsAndAudit(t *testing.T) {
	store, err := archive.Open(filepath.Join(t.TempDir(), "events.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	f := newFixture(t, nil, WithArchive(store))
	f.fund(f.player, units(10))
	rec, _ := f.do(http.MethodPost, "/v1/join", f.token(f.player), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, body := f.do(http.MethodGet, "/v1/events?type=savings.deposit", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := body["events"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	require.Equal(t, "savings.deposit", first["type"])
	require.NotEmpty(t, first["digest"])
	require.EqualValues(t, 2, first["id"])

	rec, body = f.do(http.MethodGet, "/v1/events?after=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["events"], 1)

	rec, _ = f.do(http.MethodGet, "/v1/events?player=bogus", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(http.MethodGet, "/v1/admin/audit", f.token(f.owner, "admin"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.EqualValues(t, 2, body["checked"])
	require.Equal(t, true, body["intact"])
}

func TestAuditWithoutArchive(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(http.MethodGet, "/v1/admin/audit", f.token(f.owner, "admin"), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

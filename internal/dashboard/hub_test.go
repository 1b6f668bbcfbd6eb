package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/ml"
	"maintenance-classifier/internal/prediction"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gaugeRecorder struct {
	mu   sync.Mutex
	last float64
}

func (g *gaugeRecorder) DashboardClientsSet(n float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = n
}

func (g *gaugeRecorder) value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func startHub(t *testing.T, latest LatestSource, metrics MetricsInterface) (string, *Hub, context.CancelFunc) {
	t.Helper()

	hub := New(latest, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancel
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 5*time.Millisecond)
}

func snapshot(id uint64, label string) prediction.Snapshot {
	chosen := ml.Verdict{Model: common.ModelRandomForest, Label: label, Confidence: 0.88}
	return prediction.Snapshot{
		Source:   prediction.SourceCreate,
		RecordID: id,
		Result:   ml.Result{PerModel: []ml.Verdict{chosen}, Chosen: chosen},
		ScoredAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestHub_SendsLatestOnConnect(t *testing.T) {
	latest := &prediction.Latest{}
	latest.Set(snapshot(7, common.LabelFailure))

	wsURL, _, _ := startHub(t, latest, nil)
	conn := dial(t, wsURL)

	msg := readMessage(t, conn)
	assert.Equal(t, EventLatest, msg.Event)
	assert.Equal(t, uint64(7), msg.Data.RecordID)
	assert.Equal(t, common.LabelFailure, msg.Data.Result.Chosen.Label)
}

func TestHub_PublishReachesEveryClient(t *testing.T) {
	metrics := &gaugeRecorder{}
	wsURL, hub, _ := startHub(t, &prediction.Latest{}, metrics)

	a := dial(t, wsURL)
	b := dial(t, wsURL)
	waitForClients(t, hub, 2)
	assert.Equal(t, 2.0, metrics.value())

	hub.Publish(snapshot(11, common.LabelNoFailure))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, EventVerdict, msg.Event)
		assert.Equal(t, uint64(11), msg.Data.RecordID)
		assert.Equal(t, common.ModelRandomForest, msg.Data.Result.Chosen.Model)
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	metrics := &gaugeRecorder{}
	wsURL, hub, _ := startHub(t, nil, metrics)

	conn := dial(t, wsURL)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
	assert.Eventually(t, func() bool { return metrics.value() == 0 }, time.Second, 5*time.Millisecond)

	// publishing with nobody connected is a no-op
	hub.Publish(snapshot(1, common.LabelFailure))
}

func TestHub_RunClosesClientsOnCancel(t *testing.T) {
	wsURL, hub, cancel := startHub(t, nil, nil)

	conn := dial(t, wsURL)
	waitForClients(t, hub, 1)

	cancel()
	waitForClients(t, hub, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

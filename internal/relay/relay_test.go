package relay

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remoteplay/rpctl/internal/engine"
	"github.com/remoteplay/rpctl/internal/engine/enginetest"
	"github.com/remoteplay/rpctl/internal/h264"
	"github.com/remoteplay/rpctl/internal/hostconfig"
	"github.com/remoteplay/rpctl/internal/session"
	"github.com/remoteplay/rpctl/internal/stream"
)

var (
	keyframe = append(append([]byte{}, enginetest.SPS...), enginetest.IDR...)
	fast     = stream.Options{
		PollInterval:       time.Millisecond,
		IFramePollInterval: time.Millisecond,
		IFrameTimeout:      200 * time.Millisecond,
		BufferSize:         1024,
	}
)

func connectedSession(t *testing.T) (*session.Session, *enginetest.Engine) {
	t.Helper()
	eng := &enginetest.Engine{OnRequestIDR: enginetest.ProvideIFrame}
	sess := session.New(session.Config{
		Name:      "PS5-Living",
		Host:      "192.168.1.30",
		RegistKey: "a1b2c3d4",
		RPKey:     "00112233445566778899aabbccddeeff",
	}, eng)
	require.NoError(t, sess.Connect(context.Background()))
	t.Cleanup(func() { _ = sess.Disconnect(context.Background()) })
	return sess, eng
}

func dial(t *testing.T, ts *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return mt, data
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHubSendsCachedKeyframeToNewClients(t *testing.T) {
	hub := NewHub(nil, nil)
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer ts.Close()

	require.NoError(t, hub.Write(enginetest.Inter))
	require.NoError(t, hub.Write(keyframe))
	require.NoError(t, hub.Write(enginetest.Inter))

	conn := dial(t, ts, nil)
	mt, data := readMessage(t, conn)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, keyframe, data)

	waitClients(t, hub, 1)
	require.NoError(t, hub.Write(enginetest.Inter))
	_, data = readMessage(t, conn)
	assert.Equal(t, enginetest.Inter, data)

	frames, bytes := hub.Stats()
	assert.Equal(t, uint64(4), frames)
	assert.Equal(t, uint64(len(keyframe)+3*len(enginetest.Inter)), bytes)
}

func TestHubHoldsFramesUntilKeyframe(t *testing.T) {
	hub := NewHub(nil, nil)
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer ts.Close()

	conn := dial(t, ts, nil)
	waitClients(t, hub, 1)

	require.NoError(t, hub.Write(enginetest.Inter))
	require.NoError(t, hub.Write(keyframe))
	require.NoError(t, hub.Write(enginetest.Inter))

	_, data := readMessage(t, conn)
	assert.Equal(t, keyframe, data, "frames before the first keyframe are skipped")
	_, data = readMessage(t, conn)
	assert.Equal(t, enginetest.Inter, data)
}

func TestHubCachesLargeISliceAsKeyframe(t *testing.T) {
	hub := NewHub(nil, nil)
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer ts.Close()

	islice := make([]byte, h264.LargeFrameThreshold+1)
	copy(islice, enginetest.Inter)
	require.False(t, h264.ContainsIDR(islice))

	require.NoError(t, hub.Write(islice))
	require.NoError(t, hub.Write(enginetest.Inter))

	conn := dial(t, ts, nil)
	_, data := readMessage(t, conn)
	assert.Equal(t, islice, data)
}

func TestHubWriteNeverFailsWithoutClients(t *testing.T) {
	hub := NewHub(nil, nil)
	assert.NoError(t, hub.Write(keyframe))
	assert.Zero(t, hub.ClientCount())
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	srv := NewServer(mustIdleSession(), Options{AllowedOrigins: []string{"http://localhost:3000"}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, ts, http.Header{"Origin": {"http://localhost:3000"}})
	assert.NotNil(t, conn)
}

func mustIdleSession() *session.Session {
	return session.New(session.Config{Name: "idle", Host: "10.0.0.2"}, &enginetest.Engine{})
}

func TestClientInputDrivesController(t *testing.T) {
	sess, eng := connectedSession(t)
	srv := NewServer(sess, Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, nil)
	require.NoError(t, conn.WriteJSON(InputMessage{Type: MsgButtonDown, Button: "cross"}))
	require.NoError(t, conn.WriteJSON(InputMessage{Type: MsgStick, Side: "left", X: 1, Y: -1}))
	require.NoError(t, conn.WriteJSON(InputMessage{Type: MsgTriggers, L2: 1}))

	h := eng.Last()
	require.Eventually(t, func() bool { return len(h.States()) == 3 }, 2*time.Second, 5*time.Millisecond)
	last := h.States()[2]
	assert.Equal(t, uint32(engine.ButtonCross), last.Buttons)
	assert.Equal(t, int16(32767), last.LeftX)
	assert.Equal(t, int16(-32767), last.LeftY)
	assert.Equal(t, uint8(255), last.L2)

	require.NoError(t, conn.WriteJSON(InputMessage{Type: MsgReset}))
	require.Eventually(t, func() bool { return len(h.States()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, engine.IdleControllerState(), h.States()[3])
}

func TestClientInputErrorsAreReported(t *testing.T) {
	sess, _ := connectedSession(t)
	srv := NewServer(sess, Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, nil)
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"bad json", "{", "invalid message"},
		{"unknown type", `{"type":"dance"}`, "unknown message type"},
		{"unknown button", `{"type":"button_down","button":"turbo"}`, "unknown button"},
		{"unknown stick", `{"type":"stick","side":"middle"}`, "unknown stick"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tc.input)))
			mt, data := readMessage(t, conn)
			require.Equal(t, websocket.TextMessage, mt)
			var reply ErrorMessage
			require.NoError(t, json.Unmarshal(data, &reply))
			assert.Equal(t, MsgError, reply.Type)
			assert.Contains(t, reply.Message, tc.want)
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	sess, _ := connectedSession(t)
	srv := NewServer(sess, Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "PS5-Living", st.Session.Name)
	assert.Equal(t, session.StateConnected, st.Session.State)
	assert.Equal(t, "fake", st.Session.Engine)
	assert.Zero(t, st.Clients)
	assert.NotEmpty(t, st.Version)
}

func TestHostsEndpointHidesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Chiaki.conf")
	require.NoError(t, os.WriteFile(path, []byte(`[registered_hosts]
1\rp_key=@ByteArray(\x1\x2\x3\x4\x5\x6\a\b\t\n\v\f\r\xe\xf\x10)
1\rp_regist_key=@ByteArray(secretkey)
1\server_mac=@ByteArray(\0\x11\x22\x33\x44U)
1\server_nickname=PS5-Living
1\target=1000100
size=1
`), 0o600))

	srv := NewServer(mustIdleSession(), Options{Hosts: hostconfig.NewStore(path)})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/hosts")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "PS5-Living")
	assert.NotContains(t, string(body), "secretkey")
}

func TestHostsEndpointWithoutStore(t *testing.T) {
	srv := NewServer(mustIdleSession(), Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/hosts")
	require.NoError(t, err)
	defer resp.Body.Close()
	var hosts []hostconfig.Host
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hosts))
	assert.Empty(t, hosts)
}

func TestCaptureEndpoint(t *testing.T) {
	sess, eng := connectedSession(t)
	srv := NewServer(sess, Options{Stream: fast})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/capture", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/h264", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, keyframe, body)
	assert.Equal(t, 1, eng.Last().IDRRequests())

	resp2, err := http.Post(ts.URL+"/api/capture?format=png", "", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp2.StatusCode)
}

func TestCaptureEndpointTimeout(t *testing.T) {
	sess, eng := connectedSession(t)
	eng.OnRequestIDR = nil
	srv := NewServer(sess, Options{Stream: fast})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/capture", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestCaptureRequiresConnectedSession(t *testing.T) {
	srv := NewServer(mustIdleSession(), Options{Stream: fast})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/capture", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func startServe(ctx context.Context, t *testing.T, srv *Server) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, ln) }()
	return ln.Addr().String(), errc
}

func TestServeStreamsToClientsAndStopsOnCancel(t *testing.T) {
	sess, eng := connectedSession(t)
	srv := NewServer(sess, Options{Stream: fast})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, errc := startServe(ctx, t, srv)

	require.Eventually(t, func() bool {
		frames, _ := srv.Hub().Stats()
		return frames >= 1
	}, 2*time.Second, 5*time.Millisecond)

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	_, data := readMessage(t, conn)
	assert.True(t, h264.ContainsIDR(data), "first frame a client sees is decodable")

	eng.Last().Frames.Push(enginetest.Inter)
	_, data = readMessage(t, conn)
	assert.Equal(t, enginetest.Inter, data)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
}

func TestServeEndsWhenSessionQuits(t *testing.T) {
	sess, eng := connectedSession(t)
	srv := NewServer(sess, Options{Stream: fast})
	_, errc := startServe(context.Background(), t, srv)

	require.Eventually(t, func() bool {
		frames, _ := srv.Hub().Stats()
		return frames >= 1
	}, 2*time.Second, 5*time.Millisecond)
	eng.Last().Quit("remote closed")

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrSessionEnded)
		assert.Contains(t, err.Error(), "remote closed")
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not stop after the session ended")
	}
}

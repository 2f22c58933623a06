package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"voxelterrain/internal/config"
	"voxelterrain/internal/network"
	"voxelterrain/internal/world"
)

func testWorld(t *testing.T) *world.World {
	t.Helper()
	w := world.New()
	for x := 0; x < 2; x++ {
		if err := w.Insert(world.Voxel{Position: world.Position{X: x, Y: 3}, Kind: world.KindGrass}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		for y := 2; y >= 0; y-- {
			if err := w.Insert(world.Voxel{Position: world.Position{X: x, Y: y}, Kind: world.KindDirt}); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
	}
	return w
}

func newTestServer(t *testing.T, w *world.World) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.World.Width = 2
	cfg.World.Depth = 1
	srv, err := New(cfg, w, 42, log.New(&bytes.Buffer{}, "", 0))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func serve(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return "ws://" + ln.Addr().String() + "/ws"
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func connect(t *testing.T, url, name string) *client {
	t.Helper()
	var (
		conn *websocket.Conn
		err  error
	)
	for attempt := 0; attempt < 50; attempt++ {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	c := &client{t: t, conn: conn}
	c.send(network.MessageHello, network.Hello{Name: name})
	return c
}

func (c *client) send(msgType network.MessageType, payload any) {
	c.t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	data, err := network.Encode(network.Envelope{Type: msgType, Timestamp: time.Now().UTC(), Payload: raw})
	if err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *client) expect(msgType network.MessageType, v any) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read %s: %v", msgType, err)
	}
	env, err := network.DecodeFrame(data)
	if err != nil {
		c.t.Fatalf("decode frame: %v", err)
	}
	if env.Type != msgType {
		c.t.Fatalf("expected %s, got %s (%s)", msgType, env.Type, env.Payload)
	}
	if err := network.DecodePayload(env, v); err != nil {
		c.t.Fatalf("decode %s: %v", msgType, err)
	}
}

func TestViewerReceivesWelcomeAndSnapshot(t *testing.T) {
	w := testWorld(t)
	url := serve(t, newTestServer(t, w))

	c := connect(t, url, "viewer")
	var welcome network.Welcome
	c.expect(network.MessageWelcome, &welcome)
	if welcome.SessionID == "" || welcome.Voxels != 8 || welcome.Seed != 42 {
		t.Fatalf("unexpected welcome %+v", welcome)
	}
	if welcome.Digest != formatDigest(w.Digest()) {
		t.Fatalf("welcome digest %s, want %s", welcome.Digest, formatDigest(w.Digest()))
	}

	c.send(network.MessageSnapshotRequest, struct{}{})
	var snap network.Snapshot
	c.expect(network.MessageSnapshot, &snap)
	if len(snap.Voxels) != 8 || snap.Digest != welcome.Digest {
		t.Fatalf("snapshot has %d voxels, digest %s", len(snap.Voxels), snap.Digest)
	}
	top := snap.Voxels[len(snap.Voxels)-1]
	if top.Kind != network.KindCodeGrass || top.Material != world.MaterialGrass {
		t.Fatalf("expected last voxel to be grass, got %+v", top)
	}
}

func TestPickRemovalBroadcastsDelta(t *testing.T) {
	w := testWorld(t)
	url := serve(t, newTestServer(t, w))

	picker := connect(t, url, "picker")
	watcher := connect(t, url, "watcher")
	var welcome network.Welcome
	picker.expect(network.MessageWelcome, &welcome)
	watcher.expect(network.MessageWelcome, &welcome)

	picker.send(network.MessagePick, network.PickRequest{
		Origin:    mgl64.Vec3{0, 10, 0},
		Direction: mgl64.Vec3{0, -1, 0},
		Remove:    true,
	})

	var result network.PickResult
	picker.expect(network.MessagePickResult, &result)
	if !result.Hit || !result.Removed || result.Voxel == nil {
		t.Fatalf("unexpected pick result %+v", result)
	}
	if result.Voxel.Y != 3 || result.Voxel.Kind != network.KindCodeGrass || result.Distance != 6.5 {
		t.Fatalf("expected grass at y=3 struck at 6.5, got %+v", result)
	}

	for _, c := range []*client{picker, watcher} {
		var delta network.WorldDelta
		c.expect(network.MessageWorldDelta, &delta)
		if len(delta.Removed) != 1 || delta.Removed[0].Y != 3 {
			t.Fatalf("unexpected delta %+v", delta)
		}
	}

	if _, ok := w.Get(world.Position{X: 0, Y: 3}); ok {
		t.Fatalf("voxel still in world after removal")
	}

	picker.send(network.MessagePick, network.PickRequest{
		Origin:    mgl64.Vec3{0, 10, 0},
		Direction: mgl64.Vec3{0, -1, 0},
	})
	picker.expect(network.MessagePickResult, &result)
	if !result.Hit || result.Removed || result.Voxel.Y != 2 || result.Voxel.Kind != network.KindCodeDirt {
		t.Fatalf("expected dirt beneath without removal, got %+v", result)
	}
}

func TestHandlePickMissDoesNotQueueDelta(t *testing.T) {
	srv := newTestServer(t, testWorld(t))
	result := srv.handlePick(network.PickRequest{
		Origin:    mgl64.Vec3{0, -20, 0},
		Direction: mgl64.Vec3{0, -1, 0},
		Remove:    true,
	})
	if result.Hit {
		t.Fatalf("expected miss, got %+v", result)
	}
	if srv.deltaBuffer.len() != 0 {
		t.Fatalf("miss queued a delta")
	}
}

func TestDeltaAccumulatorFlush(t *testing.T) {
	acc := newDeltaAccumulator()
	var seq uint64 = 5
	if _, ok := acc.flush(&seq); ok {
		t.Fatalf("empty accumulator should not flush")
	}

	acc.add(world.Voxel{Position: world.Position{X: 2, Y: 1}, Kind: world.KindDirt})
	acc.add(world.Voxel{Position: world.Position{X: 1, Y: 4}, Kind: world.KindGrass})
	acc.add(world.Voxel{Position: world.Position{X: 2, Y: 1}, Kind: world.KindDirt})

	delta, ok := acc.flush(&seq)
	if !ok {
		t.Fatalf("expected a delta")
	}
	if delta.Seq != 5 || seq != 6 {
		t.Fatalf("sequence not advanced: delta %d, next %d", delta.Seq, seq)
	}
	if len(delta.Removed) != 2 || delta.Removed[0].X != 1 || delta.Removed[1].X != 2 {
		t.Fatalf("unexpected removed list %+v", delta.Removed)
	}
	if acc.len() != 0 {
		t.Fatalf("accumulator not reset")
	}
}

func TestHandlePickCapsRequestedDistance(t *testing.T) {
	srv := newTestServer(t, testWorld(t))

	result := srv.handlePick(network.PickRequest{
		Origin:      mgl64.Vec3{0, 1e6, 0},
		Direction:   mgl64.Vec3{0, -1, 0},
		MaxDistance: 1e12,
	})
	if result.Hit {
		t.Fatalf("pick beyond the configured reach should miss, got %+v", result)
	}

	result = srv.handlePick(network.PickRequest{
		Origin:      mgl64.Vec3{0, 10, 0},
		Direction:   mgl64.Vec3{0, -1, 0},
		MaxDistance: 1e12,
	})
	if !result.Hit || result.Distance != 6.5 {
		t.Fatalf("expected grass at 6.5 within reach, got %+v", result)
	}

	result = srv.handlePick(network.PickRequest{
		Origin:      mgl64.Vec3{0, 10, 0},
		Direction:   mgl64.Vec3{0, -1, 0},
		MaxDistance: 3,
	})
	if result.Hit {
		t.Fatalf("shorter client reach should be honoured, got %+v", result)
	}
}

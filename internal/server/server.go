package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"voxelterrain/internal/config"
	"voxelterrain/internal/network"
	"voxelterrain/internal/picker"
	"voxelterrain/internal/world"
)

// Server exposes a generated world to remote viewers. Reads (welcome,
// snapshot) are served from the session goroutines; picks that may remove
// voxels are funnelled through the inbox so the world has a single writer.
type Server struct {
	cfg    *config.Config
	world  *world.World
	seed   int64
	net    *network.Server
	logger *log.Logger

	inbox       chan pickJob
	deltaBuffer *deltaAccumulator
	deltaSeq    uint64
}

type pickJob struct {
	sess *network.Session
	req  network.PickRequest
}

func New(cfg *config.Config, w *world.World, seed int64, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if w == nil {
		return nil, fmt.Errorf("world is nil")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "viewer ", log.LstdFlags|log.Lmicroseconds)
	}

	queue := cfg.Viewer.MaxQueue
	if queue <= 0 {
		queue = 16
	}
	netSrv := network.NewServer(network.Options{
		ReadTimeout:  cfg.Viewer.ReadTimeout.Duration(),
		WriteTimeout: cfg.Viewer.WriteTimeout.Duration(),
		MaxQueue:     queue,
		Compress:     cfg.Viewer.Compress,
	}, logger)

	srv := &Server{
		cfg:         cfg,
		world:       w,
		seed:        seed,
		net:         netSrv,
		logger:      logger,
		inbox:       make(chan pickJob, queue),
		deltaBuffer: newDeltaAccumulator(),
	}
	srv.registerHandlers()
	return srv, nil
}

func (s *Server) registerHandlers() {
	s.net.Register(network.MessageHello, s.onHello)
	s.net.Register(network.MessageSnapshotRequest, s.onSnapshotRequest)
	s.net.Register(network.MessagePick, s.onPick)
}

// Run listens on the configured viewer address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Viewer.Listen == "" {
		return fmt.Errorf("viewer.listen is empty")
	}
	ln, err := net.Listen("tcp", s.cfg.Viewer.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Viewer.Listen, err)
	}
	s.logger.Printf("viewer server listening on %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve accepts viewers on ln and runs the world loop until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	netErr := make(chan error, 1)
	go func() {
		netErr <- s.net.Serve(ctx, ln)
	}()

	for {
		select {
		case <-ctx.Done():
			<-netErr
			return ctx.Err()
		case err := <-netErr:
			if err == nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return err
		case job := <-s.inbox:
			result := s.handlePick(job.req)
			if err := s.net.Send(job.sess, network.MessagePickResult, result); err != nil {
				s.logger.Printf("pick result to %s: %v", job.sess.ID, err)
			}
			if len(s.inbox) == 0 {
				s.flushDeltas()
			}
		}
	}
}

func (s *Server) handlePick(req network.PickRequest) network.PickResult {
	// Clients may shorten the reach but never extend it past the configured limit.
	maxDistance := s.cfg.Picker.MaxDistance
	if req.MaxDistance > 0 {
		maxDistance = min(req.MaxDistance, maxDistance)
	}

	var (
		hit picker.Hit
		ok  bool
	)
	if req.Remove {
		hit, ok = picker.Break(s.world, req.Origin, req.Direction, maxDistance)
	} else {
		hit, ok = picker.Pick(s.world, req.Origin, req.Direction, maxDistance)
	}
	if !ok {
		return network.PickResult{}
	}

	state := encodeVoxel(hit.Voxel)
	result := network.PickResult{
		Hit:      true,
		Voxel:    &state,
		Distance: hit.Distance,
		Normal:   [3]int{hit.Normal.X, hit.Normal.Y, hit.Normal.Z},
		Removed:  req.Remove,
	}
	if req.Remove {
		s.deltaBuffer.add(hit.Voxel)
		s.logger.Printf("removed %s at %v", hit.Voxel.Kind, hit.Voxel.Position)
	}
	return result
}

func (s *Server) flushDeltas() {
	delta, ok := s.deltaBuffer.flush(&s.deltaSeq)
	if !ok {
		return
	}
	if _, err := s.net.Broadcast(network.MessageWorldDelta, delta); err != nil {
		s.logger.Printf("world delta broadcast: %v", err)
	}
}

func (s *Server) onHello(ctx context.Context, sess *network.Session, env network.Envelope) {
	welcome := network.Welcome{
		SessionID: sess.ID,
		Width:     s.cfg.World.Width,
		Depth:     s.cfg.World.Depth,
		Seed:      s.seed,
		Voxels:    s.world.Len(),
		Digest:    formatDigest(s.world.Digest()),
	}
	if err := s.net.Send(sess, network.MessageWelcome, welcome); err != nil {
		s.logger.Printf("welcome to %s: %v", sess.ID, err)
	}
}

func (s *Server) onSnapshotRequest(ctx context.Context, sess *network.Session, env network.Envelope) {
	voxels := s.world.Snapshot()
	snap := network.Snapshot{
		Digest: formatDigest(world.DigestOf(voxels)),
		Voxels: make([]network.VoxelState, 0, len(voxels)),
	}
	for _, v := range voxels {
		snap.Voxels = append(snap.Voxels, encodeVoxel(v))
	}
	if err := s.net.SendLarge(sess, network.MessageSnapshot, snap); err != nil {
		s.logger.Printf("snapshot to %s: %v", sess.ID, err)
	}
}

func (s *Server) onPick(ctx context.Context, sess *network.Session, env network.Envelope) {
	var req network.PickRequest
	if err := network.DecodePayload(env, &req); err != nil {
		_ = s.net.Send(sess, network.MessageError, network.ErrorReply{Message: err.Error()})
		return
	}
	select {
	case s.inbox <- pickJob{sess: sess, req: req}:
	case <-ctx.Done():
	default:
		_ = s.net.Send(sess, network.MessageError, network.ErrorReply{Message: "pick queue full"})
	}
}

func formatDigest(d uint64) string {
	return fmt.Sprintf("%016x", d)
}

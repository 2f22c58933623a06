package network

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/klauspost/compress/zstd"
)

type MessageType string

const (
	MessageHello           MessageType = "hello"
	MessageWelcome         MessageType = "welcome"
	MessageSnapshotRequest MessageType = "snapshotRequest"
	MessageSnapshot        MessageType = "snapshot"
	MessagePick            MessageType = "pick"
	MessagePickResult      MessageType = "pickResult"
	MessageWorldDelta      MessageType = "worldDelta"
	MessageError           MessageType = "error"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

type Hello struct {
	Name string `json:"name"`
}

type Welcome struct {
	SessionID string `json:"sessionId"`
	Width     int    `json:"width"`
	Depth     int    `json:"depth"`
	Seed      int64  `json:"seed"`
	Voxels    int    `json:"voxels"`
	Digest    string `json:"digest"`
}

// KindCode encodes voxel kinds into a compact numeric value for transmission.
type KindCode uint8

const (
	KindCodeUnknown KindCode = iota
	KindCodeGrass
	KindCodeDirt
)

type VoxelState struct {
	X        int      `json:"x"`
	Y        int      `json:"y"`
	Z        int      `json:"z"`
	Kind     KindCode `json:"kind"`
	Material string   `json:"material,omitempty"`
	Color    string   `json:"color,omitempty"`
	Texture  string   `json:"texture,omitempty"`
}

type Snapshot struct {
	Digest string       `json:"digest"`
	Voxels []VoxelState `json:"voxels"`
}

// PickRequest asks the server to cast a ray. A zero MaxDistance uses the
// server default. Remove breaks the struck voxel.
type PickRequest struct {
	Origin      mgl64.Vec3 `json:"origin"`
	Direction   mgl64.Vec3 `json:"direction"`
	MaxDistance float64    `json:"maxDistance,omitempty"`
	Remove      bool       `json:"remove"`
}

type PickResult struct {
	Hit      bool        `json:"hit"`
	Voxel    *VoxelState `json:"voxel,omitempty"`
	Distance float64     `json:"distance,omitempty"`
	Normal   [3]int      `json:"normal"`
	Removed  bool        `json:"removed"`
}

type WorldDelta struct {
	Seq       uint64       `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	Removed   []VoxelState `json:"removed"`
}

type ErrorReply struct {
	Message string `json:"message"`
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// MaxFrameBytes caps the decompressed size of a single envelope.
const MaxFrameBytes = 16 << 20

var (
	frameEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	frameDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameBytes))
)

// Compress wraps an encoded envelope in a zstd frame.
func Compress(data []byte) []byte {
	return frameEncoder.EncodeAll(data, make([]byte, 0, len(data)/4))
}

// DecodeFrame decodes an envelope that may be zstd-compressed. Frames that
// inflate past MaxFrameBytes are rejected.
func DecodeFrame(data []byte) (Envelope, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := frameDecoder.DecodeAll(data, nil)
		if err != nil {
			return Envelope{}, fmt.Errorf("decompress frame: %w", err)
		}
		data = raw
	}
	return Decode(data)
}

// DecodePayload unmarshals env's payload into v.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%s payload: %w", env.Type, err)
	}
	return nil
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}

package engine

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/petrijr/flowstate/pkg/api"
)

// Snapshot format markers. The first byte of every snapshot says how the
// gob payload that follows is encoded.
const (
	formatGob     byte = 'g'
	formatGzipGob byte = 'z'
)

// executionSnapshot is the durable part of an Execution. Flow definitions,
// listeners and the key factory are re-attached on restore.
type executionSnapshot struct {
	FlowID            string
	Sessions          []sessionSnapshot
	ConversationScope map[string]any
	FlashScope        map[string]any
}

type sessionSnapshot struct {
	FlowID  string
	StateID string
	Status  api.SessionStatus
	Scope   map[string]any
}

// marshal serializes the durable state of e.
func marshal(e *Execution, compress bool) ([]byte, error) {
	snap := executionSnapshot{
		FlowID:            e.flow.ID,
		Sessions:          make([]sessionSnapshot, len(e.sessions)),
		ConversationScope: durable(e.conversationScope),
		FlashScope:        durable(e.flashScope),
	}
	for i, s := range e.sessions {
		ss := sessionSnapshot{
			FlowID: s.flow.ID,
			Status: s.status,
			Scope:  durable(s.scope),
		}
		if s.state != nil {
			ss.StateID = s.state.ID
		}
		snap.Sessions[i] = ss
	}

	var buf bytes.Buffer
	if compress {
		buf.WriteByte(formatGzipGob)
		zw := gzip.NewWriter(&buf)
		if err := gob.NewEncoder(zw).Encode(&snap); err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress snapshot: %w", err)
		}
		return buf.Bytes(), nil
	}

	buf.WriteByte(formatGob)
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte) (*executionSnapshot, error) {
	if len(data) < 2 {
		return nil, errors.New("snapshot is empty")
	}

	var r io.Reader = bytes.NewReader(data[1:])
	switch data[0] {
	case formatGob:
	case formatGzipGob:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", data[0])
	}

	var snap executionSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// durable copies m, replacing error values with their captured form so
// that they survive encoding.
func durable(m *api.AttributeMap) map[string]any {
	out := m.AsMap()
	for k, v := range out {
		switch tv := v.(type) {
		case api.CapturedError:
		case error:
			out[k] = api.CaptureError(tv)
		}
	}
	return out
}

package worker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// maxFrameSize bounds one newline-delimited frame from the worker. Render
// trees dominate frame size; 8 MiB matches the socket transport's read limit.
const maxFrameSize = 8 << 20

// frame is one line on the worker's stdio. Exactly one of the two planes is
// populated: ctl carries lifecycle control messages, msg carries session
// messages. Both planes are JSON because the envelope is JSON.
type frame struct {
	Ctl json.RawMessage `json:"ctl,omitempty"`
	Msg json.RawMessage `json:"msg,omitempty"`
}

// frameSink receives decoded frames from the bridge's read loop. Calls
// arrive from a single goroutine in stream order.
type frameSink interface {
	onControl(protocol.ControlMessage)
	onControlError(error)
	onSession(protocol.Message)
	onSessionError(error)
}

// bridge speaks the NDJSON envelope over a worker's stdin/stdout. Writes
// are serialized; reads happen on the single goroutine that calls run.
type bridge struct {
	mu     sync.Mutex
	w      io.Writer
	r      io.Reader
	codec  protocol.Codec
	logger *slog.Logger
}

func newBridge(w io.Writer, r io.Reader, logger *slog.Logger) *bridge {
	return &bridge{w: w, r: r, codec: protocol.JSONCodec{}, logger: logger}
}

// sendControl writes one control frame.
func (b *bridge) sendControl(msg protocol.ControlMessage) error {
	data, err := protocol.EncodeControl(msg)
	if err != nil {
		return err
	}
	return b.writeFrame(frame{Ctl: data})
}

// sendSession writes one session frame.
func (b *bridge) sendSession(msg protocol.Message) error {
	data, err := b.codec.Encode(msg)
	if err != nil {
		return err
	}
	return b.writeFrame(frame{Msg: data})
}

func (b *bridge) writeFrame(f frame) error {
	line, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("worker: encode frame: %w", err)
	}
	line = append(line, '\n')
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.w.Write(line); err != nil {
		return fmt.Errorf("worker: write frame: %w", err)
	}
	return nil
}

// run reads frames until the stream ends, routing each to the sink. Lines
// that are not frames (the worker printed to stdout) are logged and skipped
// rather than treated as failures. Returns the read error, nil on clean EOF.
func (b *bridge) run(sink frameSink) error {
	sc := bufio.NewScanner(b.r)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			b.logger.Debug("worker stdout", "line", string(line))
			continue
		}
		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			sink.onControlError(fmt.Errorf("worker: bad frame: %w", err))
			continue
		}
		switch {
		case f.Ctl != nil:
			msg, err := protocol.DecodeControl(f.Ctl)
			if err != nil {
				sink.onControlError(err)
				continue
			}
			sink.onControl(msg)
		case f.Msg != nil:
			msg, err := b.codec.Decode(f.Msg)
			if err != nil {
				sink.onSessionError(err)
				continue
			}
			sink.onSession(msg)
		default:
			sink.onControlError(errors.New("worker: frame carries neither plane"))
		}
	}
	return sc.Err()
}

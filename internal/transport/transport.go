// Package transport carries control.Command/control.Response across a unix
// domain socket (on every OS; there is no named-pipe path) as
// newline-delimited JSON, so
// cmd/kanata-go can demonstrate the control channel end to end without the
// core coupling to any one transport (spec.md §6). Grounded on the
// accept-loop/per-client-goroutine/graceful-Stop shape of
// writerslogic-witnessd's internal/ipc server, simplified from its binary
// header + MessagePack framing to one JSON object per line since the
// control vocabulary here is small and framing doesn't need to share a
// socket with a bulk data stream.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kidandcat/kanata-go/internal/action"
	"github.com/kidandcat/kanata-go/internal/control"
)

// envelope is the wire representation of one request or response line. Kind
// names which control.Command variant Payload decodes to; empty on a
// response line, which carries only the Response's own fields.
type envelope struct {
	ID      uint64          `json:"id"`
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Ok    bool     `json:"ok,omitempty"`
	Error string   `json:"error,omitempty"`
	Names []string `json:"names,omitempty"`
	Name  string   `json:"name,omitempty"`
	Info  string   `json:"info,omitempty"`
}

// Submitter is the subset of orchestrator.Orchestrator the server needs: one
// blocking round-trip per Command.
type Submitter interface {
	Submit(cmd control.Command) control.Response
}

// Server listens on a unix domain socket and decodes/dispatches one
// control.Command per line to a Submitter, per spec.md §6.
type Server struct {
	log  *logrus.Entry
	path string
	sub  Submitter

	mu       sync.Mutex
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer returns a Server bound to sockPath but not yet listening.
func NewServer(log *logrus.Entry, sockPath string, sub Submitter) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{log: log, path: sockPath, sub: sub, ctx: ctx, cancel: cancel}
}

// Start creates the socket directory, clears a stale socket file, and
// begins accepting connections in the background.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("transport: create socket directory: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transport: remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("transport: set socket permissions: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.WithError(err).Warn("transport: accept failed")
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var req envelope
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			enc.Encode(envelope{Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}
		cmd, err := decodeCommand(req.Kind, req.Payload)
		if err != nil {
			enc.Encode(envelope{ID: req.ID, Error: err.Error()})
			continue
		}
		resp := s.sub.Submit(cmd)
		if err := enc.Encode(responseToEnvelope(req.ID, resp)); err != nil {
			return
		}
	}
}

// Stop closes the listener and waits (up to 5s) for in-flight connections to
// drain, mirroring the teacher pack's graceful-shutdown timeout pattern.
func (s *Server) Stop() error {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	os.Remove(s.path)
	return nil
}

func responseToEnvelope(id uint64, r control.Response) envelope {
	return envelope{ID: id, Ok: r.Ok, Error: r.Error, Names: r.Names, Name: r.Name, Info: r.Info}
}

// decodeCommand reverses Client's encodeCommand, resolving kind to a
// concrete control.Command and unmarshaling payload into it.
func decodeCommand(kind string, payload json.RawMessage) (control.Command, error) {
	switch kind {
	case "ChangeLayer":
		var c control.ChangeLayer
		if err := unmarshalIfPresent(payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	case "RequestLayerNames":
		return control.RequestLayerNames{}, nil
	case "RequestCurrentLayerName":
		return control.RequestCurrentLayerName{}, nil
	case "RequestCurrentLayerInfo":
		return control.RequestCurrentLayerInfo{}, nil
	case "Reload":
		return control.Reload{}, nil
	case "ReloadNext":
		return control.ReloadNext{}, nil
	case "ReloadPrev":
		return control.ReloadPrev{}, nil
	case "ReloadNum":
		var c control.ReloadNum
		if err := unmarshalIfPresent(payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	case "ReloadFile":
		var c control.ReloadFile
		if err := unmarshalIfPresent(payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	case "FakeKeyOp":
		var c struct {
			Ref   string
			Op    action.FakeKeyOp
			Delay uint32
		}
		if err := unmarshalIfPresent(payload, &c); err != nil {
			return nil, err
		}
		return control.FakeKeyOp{Ref: c.Ref, Op: c.Op, Delay: c.Delay}, nil
	case "SetMouse":
		var c control.SetMouse
		if err := unmarshalIfPresent(payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("transport: unknown command kind %q", kind)
	}
}

func unmarshalIfPresent(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}

// encodeCommand is the Client-side inverse of decodeCommand: it names the
// Kind and marshals the payload fields a given Command variant carries.
func encodeCommand(cmd control.Command) (string, json.RawMessage, error) {
	switch c := cmd.(type) {
	case control.ChangeLayer:
		return marshalKind("ChangeLayer", c)
	case control.RequestLayerNames:
		return "RequestLayerNames", nil, nil
	case control.RequestCurrentLayerName:
		return "RequestCurrentLayerName", nil, nil
	case control.RequestCurrentLayerInfo:
		return "RequestCurrentLayerInfo", nil, nil
	case control.Reload:
		return "Reload", nil, nil
	case control.ReloadNext:
		return "ReloadNext", nil, nil
	case control.ReloadPrev:
		return "ReloadPrev", nil, nil
	case control.ReloadNum:
		return marshalKind("ReloadNum", c)
	case control.ReloadFile:
		return marshalKind("ReloadFile", c)
	case control.FakeKeyOp:
		return marshalKind("FakeKeyOp", c)
	case control.SetMouse:
		return marshalKind("SetMouse", c)
	default:
		return "", nil, fmt.Errorf("transport: unsupported command %T", cmd)
	}
}

func marshalKind(kind string, v any) (string, json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("transport: encode %s: %w", kind, err)
	}
	return kind, b, nil
}

// Client is a thin synchronous round-trip client for a Server's socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	nextID  uint64
}

// Dial connects to a Server listening at sockPath.
func Dial(sockPath string) (*Client, error) {
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", sockPath, err)
	}
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 4096), 1<<20)
	return &Client{conn: conn, scanner: sc}, nil
}

// Send submits cmd and blocks for the matching Response.
func (c *Client) Send(cmd control.Command) (control.Response, error) {
	kind, payload, err := encodeCommand(cmd)
	if err != nil {
		return control.Response{}, err
	}
	c.nextID++
	req := envelope{ID: c.nextID, Kind: kind, Payload: payload}
	line, err := json.Marshal(req)
	if err != nil {
		return control.Response{}, fmt.Errorf("transport: encode request: %w", err)
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return control.Response{}, fmt.Errorf("transport: write request: %w", err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return control.Response{}, fmt.Errorf("transport: read response: %w", err)
		}
		return control.Response{}, fmt.Errorf("transport: connection closed")
	}
	var resp envelope
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return control.Response{}, fmt.Errorf("transport: decode response: %w", err)
	}
	return control.Response{Ok: resp.Ok, Error: resp.Error, Names: resp.Names, Name: resp.Name, Info: resp.Info}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

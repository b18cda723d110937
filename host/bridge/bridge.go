// Package bridge is the config/status side-channel promised by the
// external-interfaces section: it wires core.CommandRegistry and the
// matched protocol.Transport/protocol.HostTransport pair from the
// donor's Klipper-style binary framing into a live, two-way config and
// status surface instead of leaving them as a dictionary and a codec
// nothing ever calls. Server plays the MCU role (registers commands,
// frames responses); Client plays the host role (sends commands, waits
// on ACKs and responses). Any io.ReadWriteCloser pair works as the
// wire - a net.Pipe() in tests and the simulator binary, a real serial
// port in firmware mode.
package bridge

import (
	"fmt"
	"io"
	"time"

	"cncfw/config"
	"cncfw/core"
	"cncfw/protocol"
	"cncfw/status"
)

// Command IDs for the config/status side-channel. Fixed, not
// auto-assigned from registration order, because the Client builds
// requests against these same constants without seeing the Server's
// registry.
const (
	CmdConfigGet    uint16 = 0
	CmdConfigSet    uint16 = 1
	CmdStatusReport uint16 = 2
)

// Server is the MCU-side half: a core.CommandRegistry dispatching three
// fixed commands against a config.Registry and status.Reporter, framed
// over a protocol.Transport exactly the way every other outbound
// message on this wire is framed.
type Server struct {
	registry  *core.CommandRegistry
	transport *protocol.Transport
	scratch   *protocol.ScratchOutput
	conn      io.ReadWriteCloser
}

// NewServer builds a Server bound to cfg and reporter, writing framed
// replies to conn. The registration order below must match the
// Cmd* constants (config_get=0, config_set=1, status_report=2).
func NewServer(cfg *config.Registry, reporter *status.Reporter, conn io.ReadWriteCloser) *Server {
	s := &Server{
		registry: core.NewCommandRegistry(),
		scratch:  protocol.NewScratchOutput(),
		conn:     conn,
	}
	s.transport = protocol.NewTransport(s.scratch, s.registry.Dispatch)
	s.transport.SetFlushCallback(s.flush)

	getID := s.registry.Register("config_get", "name=%s", func(data *[]byte) error {
		name, err := protocol.DecodeVLQString(data)
		if err != nil {
			return err
		}
		v, getErr := cfg.Get(name)
		s.transport.SendCommand(CmdConfigGet, func(out protocol.OutputBuffer) {
			if getErr != nil {
				out.Output([]byte{0})
				protocol.EncodeVLQInt(out, 0)
				return
			}
			out.Output([]byte{1})
			protocol.EncodeVLQInt(out, int32(v*1000))
		})
		return getErr
	})

	setID := s.registry.Register("config_set", "name=%s value=%i", func(data *[]byte) error {
		name, err := protocol.DecodeVLQString(data)
		if err != nil {
			return err
		}
		raw, err := protocol.DecodeVLQInt(data)
		if err != nil {
			return err
		}
		if err := cfg.Set(name, float64(raw)/1000); err != nil {
			core.DebugPrintln("[bridge] config_set " + name + " rejected: " + err.Error())
			return err
		}
		return nil
	})

	reportID := s.registry.Register("status_report", "", func(data *[]byte) error {
		s.transport.SendCommand(CmdStatusReport, func(out protocol.OutputBuffer) {
			_ = reporter.Encode(out)
		})
		return nil
	})

	if getID != CmdConfigGet || setID != CmdConfigSet || reportID != CmdStatusReport {
		panic("bridge: command registration order no longer matches Cmd* constants")
	}

	return s
}

// flush writes everything accumulated in scratch since the last flush
// to conn and resets it. It is wired as the Transport's flush callback,
// which fires right after each ACK/NAK is encoded (one per processed
// frame) - by then any response frame the handler queued for that
// frame is already sitting in scratch ahead of it.
func (s *Server) flush() {
	out := s.scratch.Result()
	if len(out) == 0 {
		return
	}
	buf := make([]byte, len(out))
	copy(buf, out)
	s.scratch.Reset()
	s.conn.Write(buf)
}

// Ingest feeds one chunk of wire bytes through the transport. Any
// ACK/response bytes produced are written out via flush before Ingest
// returns.
func (s *Server) Ingest(data []byte) {
	s.transport.Receive(protocol.NewSliceInputBuffer(data))
}

// Serve reads from conn until it errors or is closed, feeding every
// chunk to Ingest. Run it in its own goroutine, mirroring the pattern
// protocol.HostTransport.readLoop uses on the host side.
func (s *Server) Serve() {
	buf := make([]byte, protocol.MessageMax)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			return
		}
		if n > 0 {
			s.Ingest(buf[:n])
		}
	}
}

// Client is the host-side half: a thin, typed veneer over
// protocol.HostTransport that speaks the three fixed commands above.
type Client struct {
	transport *protocol.HostTransport
	timeout   time.Duration
}

// NewClient wraps conn in a protocol.HostTransport and returns a Client
// ready to issue config/status requests.
func NewClient(conn io.ReadWriteCloser) *Client {
	return &Client{transport: protocol.NewHostTransport(conn), timeout: 2 * time.Second}
}

// Close stops the client's background read loop and closes conn.
func (c *Client) Close() error {
	return c.transport.Close()
}

// GetToken reads one configuration token's current value.
func (c *Client) GetToken(name string) (float64, error) {
	if err := c.transport.SendCommandWithTimeout(CmdConfigGet, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQString(out, name)
	}, c.timeout); err != nil {
		return 0, err
	}
	msg, err := c.transport.ReceiveResponse(c.timeout)
	if err != nil {
		return 0, err
	}
	payload := msg.Payload
	if _, err := protocol.DecodeVLQUint(&payload); err != nil {
		return 0, err
	}
	if len(payload) < 1 {
		return 0, fmt.Errorf("bridge: truncated config_get response")
	}
	ok := payload[0]
	payload = payload[1:]
	raw, err := protocol.DecodeVLQInt(&payload)
	if err != nil {
		return 0, err
	}
	if ok == 0 {
		return 0, fmt.Errorf("bridge: unknown configuration token %q", name)
	}
	return float64(raw) / 1000, nil
}

// SetToken assigns one configuration token's value. The wire protocol
// gives no per-command result code beyond the ACK, matching the
// donor's own fire-and-ACK command style - a rejected Set (unknown
// token, read-only token) is only visible on the MCU side's debug log.
func (c *Client) SetToken(name string, value float64) error {
	return c.transport.SendCommandWithTimeout(CmdConfigSet, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQString(out, name)
		protocol.EncodeVLQInt(out, int32(value*1000))
	}, c.timeout)
}

// RequestStatus samples every token on the reporter's configured list
// and returns it as a name -> value map.
func (c *Client) RequestStatus() (map[string]float64, error) {
	if err := c.transport.SendCommandWithTimeout(CmdStatusReport, nil, c.timeout); err != nil {
		return nil, err
	}
	msg, err := c.transport.ReceiveResponse(c.timeout)
	if err != nil {
		return nil, err
	}
	payload := msg.Payload
	if _, err := protocol.DecodeVLQUint(&payload); err != nil {
		return nil, err
	}
	count, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	result := make(map[string]float64, count)
	for i := uint32(0); i < count; i++ {
		name, err := protocol.DecodeVLQString(&payload)
		if err != nil {
			return nil, err
		}
		raw, err := protocol.DecodeVLQInt(&payload)
		if err != nil {
			return nil, err
		}
		result[name] = float64(raw) / 1000
	}
	return result, nil
}

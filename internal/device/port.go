package device

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

const tcpScheme = "tcp://"

// Port is a byte stream to the rower. Read returns (0, nil) when the read
// timeout elapses without data.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Dialer opens the port at address.
type Dialer func(address string, baudRate int) (Port, error)

// Dial opens a serial device, or a TCP bridge if address starts with
// tcp://.
func Dial(address string, baudRate int) (Port, error) {
	if strings.HasPrefix(address, tcpScheme) {
		conn, err := net.DialTimeout("tcp", strings.TrimPrefix(address, tcpScheme), 5*time.Second)
		if err != nil {
			return nil, err
		}
		return &netPort{conn: conn}, nil
	}

	p, err := serial.Open(address, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// netPort gives a network connection the timeout semantics of a serial
// port.
type netPort struct {
	conn    net.Conn
	timeout time.Duration
}

func (p *netPort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *netPort) Read(b []byte) (int, error) {
	if p.timeout > 0 {
		if err := p.conn.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := p.conn.Read(b)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}
	return n, err
}

func (p *netPort) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

func (p *netPort) Close() error {
	return p.conn.Close()
}

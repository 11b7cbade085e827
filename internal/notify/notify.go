package notify

import (
	"github.com/pebbe/zmq4"
)

// Pusher announces saved session ids on a ZMQ PUSH socket.
type Pusher struct {
	socket *zmq4.Socket
}

func New(endpoint string) (*Pusher, error) {
	soc, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return nil, err
	}
	if err := soc.Connect(endpoint); err != nil {
		soc.Close()
		return nil, err
	}
	return &Pusher{socket: soc}, nil
}

// Notify queues id without waiting for a consumer.
func (p *Pusher) Notify(id string) error {
	_, err := p.socket.Send(id, zmq4.DONTWAIT)
	return err
}

func (p *Pusher) Close() error {
	return p.socket.Close()
}

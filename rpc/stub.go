package rpc

import (
	"context"

	"github.com/juju/errors"
)

// Message is serializable request or response body.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(b []byte) error
}

// MethodStub binds fixed method to client. Stateless, safe to share.
type MethodStub struct {
	client *Client
	method Method
}

func (s *MethodStub) Method() Method { return s.method }

func (s *MethodStub) CallRaw(ctx context.Context, payload []byte) (Status, []byte, error) {
	return s.client.Unary(ctx, s.method, payload)
}

// Call returns remote error for non-OK status, resp may be nil.
func (s *MethodStub) Call(ctx context.Context, req Message, resp Message) error {
	payload, err := marshal(req)
	if err != nil {
		return errors.Annotatef(err, "%s request", s.method)
	}
	status, b, err := s.CallRaw(ctx, payload)
	if err != nil {
		return err
	}
	if status != StatusOK {
		return RemoteError(s.method, status)
	}
	if resp != nil {
		if err = resp.Unmarshal(b); err != nil {
			return errors.Annotatef(err, "%s response", s.method)
		}
	}
	return nil
}

func (s *MethodStub) InvokeRaw(payload []byte, h StreamHandler) (*Call, error) {
	return s.client.Invoke(s.method, payload, h)
}

func (s *MethodStub) Invoke(req Message, h StreamHandler) (*Call, error) {
	payload, err := marshal(req)
	if err != nil {
		return nil, errors.Annotatef(err, "%s request", s.method)
	}
	return s.InvokeRaw(payload, h)
}

func marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return m.Marshal()
}

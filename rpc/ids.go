package rpc

import (
	"fmt"
	"strings"
)

const hashConst = 65599

// Hash65599 is the string hash used for service and method ids.
func Hash65599(s string) uint32 {
	h := uint32(len(s))
	coef := uint32(hashConst)
	for i := 0; i < len(s); i++ {
		h += coef * uint32(s[i])
		coef *= hashConst
	}
	return h
}

type MethodKind uint8

const (
	Unary MethodKind = iota + 1
	ServerStreaming
)

func (k MethodKind) String() string {
	switch k {
	case Unary:
		return "unary"
	case ServerStreaming:
		return "server-streaming"
	}
	return "invalid"
}

// Method is a resolved (service, method) pair, comparable and safe to use as map key.
type Method struct {
	Service   string
	Name      string
	ServiceID uint32
	MethodID  uint32
	Kind      MethodKind
}

// NewMethod takes fully qualified "package.Service.Method" name.
// Panics on malformed name, intended for package level vars.
func NewMethod(fullName string, kind MethodKind) Method {
	i := strings.LastIndexByte(fullName, '.')
	if i <= 0 || i == len(fullName)-1 {
		panic(fmt.Sprintf("code error rpc.NewMethod invalid name=%q", fullName))
	}
	service, name := fullName[:i], fullName[i+1:]
	return Method{
		Service:   service,
		Name:      name,
		ServiceID: Hash65599(service),
		MethodID:  Hash65599(name),
		Kind:      kind,
	}
}

func (m Method) FullName() string { return m.Service + "." + m.Name }
func (m Method) String() string   { return m.FullName() }

func (m Method) match(p *Packet) bool {
	return m.ServiceID == p.ServiceID && m.MethodID == p.MethodID
}

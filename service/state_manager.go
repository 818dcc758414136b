package service

import (
	"context"

	"github.com/temoto/sense/rpc"
)

type StateManager struct {
	getState        *rpc.MethodStub
	silenceAlarm    *rpc.MethodStub
	changeThreshold *rpc.MethodStub
}

func NewStateManager(c *rpc.Client) *StateManager {
	return &StateManager{
		getState:        c.Method(StateManagerGetState),
		silenceAlarm:    c.Method(StateManagerSilenceAlarm),
		changeThreshold: c.Method(StateManagerChangeThreshold),
	}
}

func (s *StateManager) GetState(ctx context.Context) (State, error) {
	var st State
	err := s.getState.Call(ctx, Empty{}, &st)
	return st, err
}

func (s *StateManager) SilenceAlarm(ctx context.Context) error {
	return s.silenceAlarm.Call(ctx, Empty{}, nil)
}

func (s *StateManager) ChangeThreshold(ctx context.Context, increment bool) error {
	return s.changeThreshold.Call(ctx, &ChangeThresholdRequest{Increment: increment}, nil)
}

//go:build !linux

package transport

import (
	"context"

	"github.com/juju/errors"
)

func (s *Serial) Open(ctx context.Context) error {
	return errors.NotSupportedf("%s on this platform", s)
}

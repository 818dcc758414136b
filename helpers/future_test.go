package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFuture(t *testing.T) {
	t.Parallel()

	f := NewFuture[int]()
	assert.False(t, IsClosed(f.Done()))
	v, err := f.Result()
	assert.Equal(t, 0, v)
	assert.NoError(t, err)

	assert.True(t, f.Complete(42))
	assert.False(t, f.Complete(43))
	assert.False(t, f.Fail(fmt.Errorf("late")))
	assert.True(t, IsClosed(f.Done()))
	v, err = f.Wait(context.Background())
	assert.Equal(t, 42, v)
	assert.NoError(t, err)
}

func TestFutureFail(t *testing.T) {
	t.Parallel()

	f := NewFuture[string]()
	go f.Fail(fmt.Errorf("broken"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	assert.Equal(t, "", v)
	assert.EqualError(t, err, "broken")
}

func TestFutureWaitContext(t *testing.T) {
	t.Parallel()

	f := NewFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Wait(ctx)
	assert.Equal(t, context.Canceled, err)
	assert.True(t, f.Complete(1))
}

package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/sunrised/internal/syncsvc"
)

func TestApp_StartWaitsForBoot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	status := a.services.Sequencer.Loop.Status()
	require.NotNil(t, status.LastSync, "boot sync has run when Start returns")
	assert.False(t, status.BootedAt.IsZero())
	assert.Equal(t, syncsvc.StatusSkipped, status.LastSync.Config.Status)

	cancel()
	assert.NoError(t, a.Wait(), "signal shutdown is not an error")
	require.NoError(t, a.Stop())
}

func TestApp_WaitReturnsFatalError(t *testing.T) {
	tests := []struct {
		name   string
		errs   []error
		expect string
	}{
		{name: "single", errs: []error{errors.New("output failed")}, expect: "output failed"},
		{name: "first wins", errs: []error{errors.New("first"), errors.New("second")}, expect: "first"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			a, err := New(ctx, testConfig(t))
			require.NoError(t, err)
			require.NoError(t, a.Start(ctx))

			for _, e := range tt.errs {
				a.fail(e)
			}

			err = a.Wait()
			require.Error(t, err)
			assert.EqualError(t, err, tt.expect)
			require.NoError(t, a.Stop())
		})
	}
}

func TestApp_StartReturnsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	assert.NoError(t, a.Wait())
	require.NoError(t, a.Stop())
}

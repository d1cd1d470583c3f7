package share

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpener_Unavailable(t *testing.T) {
	o := &Opener{command: "definitely-not-a-real-opener", look: exec.LookPath}
	assert.False(t, o.Available())

	_, err := o.Share(context.Background(), "/tmp/x.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestOpener_RunsCommand(t *testing.T) {
	o := &Opener{command: "true", look: exec.LookPath}
	if !o.Available() {
		t.Skip("true(1) not on PATH")
	}
	url, err := o.Share(context.Background(), "/tmp/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/report.pdf", url)
}

func TestOpener_CanceledContext(t *testing.T) {
	o := &Opener{command: "true", look: func(string) (string, error) { return "", errors.New("unused") }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Share(ctx, "/tmp/x.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

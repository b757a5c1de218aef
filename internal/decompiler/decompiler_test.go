package decompiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	d, err := New(ctx, Options{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Outline{}, d)

	d, err = New(ctx, Options{Backend: "OUTLINE"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Outline{}, d)

	d, err = New(ctx, Options{Backend: BackendExec, Command: []string{"javap", "-c"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Exec{}, d)

	_, err = New(ctx, Options{Backend: BackendExec}, nil)
	assert.Error(t, err)

	_, err = New(ctx, Options{Backend: "jadx"}, nil)
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	var got string
	d := Func(func(_ context.Context, classPath string, _ []byte) (string, error) {
		got = classPath
		return "src", nil
	})

	out, err := d.Decompile(context.Background(), "A.class", nil)
	require.NoError(t, err)
	assert.Equal(t, "src", out)
	assert.Equal(t, "A.class", got)
	assert.NoError(t, Close(d))
}

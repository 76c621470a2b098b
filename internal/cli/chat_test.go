package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader(t *testing.T) {
	in := newLineReader(strings.NewReader("first\nsecond\ntrailing"))

	assert.Equal(t, "first\n", <-in.lines)
	assert.Equal(t, "second\n", <-in.lines)
	assert.Equal(t, "trailing", <-in.lines)

	_, ok := <-in.lines
	assert.False(t, ok)
}

func TestTerminalConfirm(t *testing.T) {
	cases := []struct {
		answer string
		want   bool
	}{
		{"yes\n", true},
		{"y\n", true},
		{"YES\n", true},
		{"no\n", false},
		{"\n", false},
		{"maybe\n", false},
	}

	for _, c := range cases {
		in := newLineReader(strings.NewReader(c.answer))
		confirm := terminalConfirm(in)

		granted, err := confirm(context.Background(), "Allow?")
		require.NoError(t, err)
		assert.Equal(t, c.want, granted, "answer %q", c.answer)
	}
}

func TestTerminalConfirmEOFDenies(t *testing.T) {
	in := newLineReader(strings.NewReader(""))
	confirm := terminalConfirm(in)

	granted, err := confirm(context.Background(), "Allow?")
	require.Error(t, err)
	assert.False(t, granted)
}

func TestTerminalConfirmTimeoutLeavesLineForNextRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	in := newLineReader(pr)
	confirm := terminalConfirm(in)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	granted, err := confirm(ctx, "Allow?")
	require.Error(t, err)
	assert.False(t, granted)

	// An answer typed after the prompt expired must reach the next reader
	// instead of being swallowed by an abandoned prompt.
	go func() {
		_, _ = pw.Write([]byte("late answer\n"))
	}()

	select {
	case line := <-in.lines:
		assert.Equal(t, "late answer\n", line)
	case <-time.After(2 * time.Second):
		t.Fatal("line typed after an expired prompt was lost")
	}
}

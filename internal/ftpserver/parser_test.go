package ftpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclone/multiserve/internal/linereceiver"
)

func TestCommandParserParsesVerbAndArgs(t *testing.T) {
	p := newCommandParser()
	n := p.Received([]byte("USER anonymous\r\n"))
	assert.Equal(t, 16, n)
	require.True(t, p.Completed())
	assert.False(t, p.Empty())
	cmd := p.Request().(linereceiver.Command)
	assert.Equal(t, "USER", cmd.Verb)
	assert.Equal(t, "anonymous", cmd.Args)
}

func TestCommandParserAcrossFeeds(t *testing.T) {
	p := newCommandParser()
	n1 := p.Received([]byte("NO"))
	assert.Equal(t, 2, n1)
	assert.False(t, p.Completed())
	n2 := p.Received([]byte("OP\r\n"))
	assert.Equal(t, 4, n2)
	require.True(t, p.Completed())
	cmd := p.Request().(linereceiver.Command)
	assert.Equal(t, "NOOP", cmd.Verb)
}

func TestCommandParserBlankLineIsEmpty(t *testing.T) {
	p := newCommandParser()
	p.Received([]byte("\r\n"))
	assert.True(t, p.Completed())
	assert.True(t, p.Empty())
}

func TestCommandParserOverlongLine(t *testing.T) {
	p := newCommandParser()
	long := make([]byte, maxLineLength+10)
	for i := range long {
		long[i] = 'x'
	}
	p.Received(long)
	require.True(t, p.Completed())
	cmd := p.Request().(linereceiver.Command)
	assert.Equal(t, tooLongVerb, cmd.Verb)
}

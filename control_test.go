package ftpclient

import (
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeControl returns a controlConn talking to serve over an in-memory
// pipe. serve runs in its own goroutine; the returned channel is closed
// once it has returned.
func pipeControl(t *testing.T, serve func(c *textproto.Conn)) (*controlConn, <-chan struct{}) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(textproto.NewConn(server))
	}()
	return newControlConn(client, "127.0.0.1", nil, discardLogger, nil), done
}

func TestControlConn_Command(t *testing.T) {
	t.Parallel()
	var got string
	cc, done := pipeControl(t, func(c *textproto.Conn) {
		got, _ = c.ReadLine()
		_ = c.PrintfLine("257 \"/pub\" created")
	})

	resp, err := cc.command("MKD", "/pub")
	require.NoError(t, err)
	<-done
	assert.Equal(t, "MKD /pub", got)
	assert.Equal(t, 257, resp.Code)
	assert.False(t, cc.broken)
}

func TestControlConn_DrainsOwedReplies(t *testing.T) {
	t.Parallel()
	var got string
	cc, done := pipeControl(t, func(c *textproto.Conn) {
		_ = c.PrintfLine("426 Connection closed; transfer aborted.")
		got, _ = c.ReadLine()
		_ = c.PrintfLine("200 NOOP ok.")
	})
	cc.owed = 1

	resp, err := cc.command("NOOP")
	require.NoError(t, err)
	<-done
	assert.Equal(t, "NOOP", got)
	assert.Equal(t, 200, resp.Code)
	assert.Zero(t, cc.owed)
}

func TestControlConn_RejectsLineBreaks(t *testing.T) {
	t.Parallel()
	received := make(chan string, 1)
	cc, _ := pipeControl(t, func(c *textproto.Conn) {
		line, err := c.ReadLine()
		if err == nil {
			received <- line
		}
	})

	_, err := cc.command("CWD", "a\r\nDELE b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line break")
	assert.False(t, cc.broken)

	select {
	case line := <-received:
		t.Fatalf("server received %q", line)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControlConn_SetTypeCached(t *testing.T) {
	t.Parallel()
	var lines []string
	cc, done := pipeControl(t, func(c *textproto.Conn) {
		for {
			line, err := c.ReadLine()
			if err != nil {
				return
			}
			lines = append(lines, line)
			_ = c.PrintfLine("200 Type set.")
		}
	})

	require.NoError(t, cc.setType("I"))
	require.NoError(t, cc.setType("I"))
	require.NoError(t, cc.setType("A"))
	require.NoError(t, cc.close())
	<-done

	assert.Equal(t, []string{"TYPE I", "TYPE A", "QUIT"}, lines)
}

func TestControlConn_SetTypeRejected(t *testing.T) {
	t.Parallel()
	cc, _ := pipeControl(t, func(c *textproto.Conn) {
		_, _ = c.ReadLine()
		_ = c.PrintfLine("504 Type not supported.")
	})

	err := cc.setType("I")
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 504, pe.Code)
	assert.Empty(t, cc.currentType)
}

func TestControlConn_MalformedReplyBreaksSession(t *testing.T) {
	t.Parallel()
	cc, _ := pipeControl(t, func(c *textproto.Conn) {
		_, _ = c.ReadLine()
		_ = c.PrintfLine("hello there")
	})

	_, err := cc.command("NOOP")
	require.ErrorIs(t, err, ErrMalformedReply)
	assert.True(t, cc.broken)
}

func TestControlConn_CloseSendsQuitOnce(t *testing.T) {
	t.Parallel()
	var lines []string
	cc, done := pipeControl(t, func(c *textproto.Conn) {
		for {
			line, err := c.ReadLine()
			if err != nil {
				return
			}
			lines = append(lines, line)
			_ = c.PrintfLine("221 Goodbye.")
		}
	})

	require.NoError(t, cc.close())
	require.NoError(t, cc.close())
	<-done
	assert.Equal(t, []string{"QUIT"}, lines)
}

func TestControlConn_BrokenCloseSkipsQuit(t *testing.T) {
	t.Parallel()
	var lines []string
	cc, done := pipeControl(t, func(c *textproto.Conn) {
		for {
			line, err := c.ReadLine()
			if err != nil {
				return
			}
			lines = append(lines, line)
		}
	})
	cc.broken = true

	require.NoError(t, cc.close())
	<-done
	assert.Empty(t, lines)
}

func TestControlConn_PasswordNotLogged(t *testing.T) {
	t.Parallel()
	buf := &safeBuffer{}
	cc, done := pipeControl(t, func(c *textproto.Conn) {
		_, _ = c.ReadLine()
		_ = c.PrintfLine("230 Logged in.")
	})
	cc.logger = newTestLogger(buf)

	_, err := cc.command("PASS", "hunter2")
	require.NoError(t, err)
	<-done
	assert.NotContains(t, buf.String(), "hunter2")
	assert.True(t, strings.Contains(buf.String(), "PASS ****"))
}

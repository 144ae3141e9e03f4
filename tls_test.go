package ftpclient

import (
	"context"
	"io"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLS_ExplicitFull(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.tlsConfig = selfSignedTLS(t)
	ms.passive(t)
	ms.handlers["LIST"] = func(c *textproto.Conn, _ string) {
		_ = c.PrintfLine("150 Here comes the directory listing.")
		dconn := ms.acceptData(t)
		if dconn == nil {
			return
		}
		_, _ = io.WriteString(dconn, "secret.txt\r\n")
		dconn.Close()
		_ = c.PrintfLine("226 Directory send OK.")
	}
	ms.start(t)

	c := newTestClient(t, ms)
	require.NoError(t, c.SetTLS(TLSFull, false))
	require.NoError(t, c.Connect(context.Background()))

	got, err := c.ListDir(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, "secret.txt\r\n", string(got))

	lines := ms.lines()
	assert.Equal(t, "AUTH TLS", lines[0])
	assert.Contains(t, lines, "PBSZ 0")
	assert.Contains(t, lines, "PROT P")
}

func TestTLS_Implicit(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.tlsConfig = selfSignedTLS(t)
	ms.implicit = true
	ms.start(t)

	cfg := testConfig(ms)
	cfg.TLS = TLSFull
	cfg.ImplicitTLS = true
	cfg.VerifyCert = false
	c := New(WithConfig(cfg))
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Connect(context.Background()))

	assert.Zero(t, ms.count("AUTH"))
	assert.Contains(t, ms.lines(), "PROT P")
}

func TestTLS_ControlOnly(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.tlsConfig = selfSignedTLS(t)
	ms.start(t)

	c := newTestClient(t, ms)
	require.NoError(t, c.SetTLS(TLSControl, false))
	require.NoError(t, c.Connect(context.Background()))

	assert.Contains(t, ms.lines(), "PROT C")
	assert.Zero(t, ms.count("AUTH SSL"))
}

func TestTLS_Refused(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     TLSMode
		wantKind Kind
	}{
		{"opportunistic continues in clear", TLSOpportunistic, 0},
		{"control fails", TLSControl, KindConnection},
		{"full fails", TLSFull, KindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ms := newMockServer(t)
			ms.start(t)

			c := newTestClient(t, ms)
			require.NoError(t, c.SetTLS(tt.mode, false))
			err := c.Connect(context.Background())

			lines := ms.lines()
			require.GreaterOrEqual(t, len(lines), 2)
			assert.Equal(t, "AUTH TLS", lines[0])
			assert.Equal(t, "AUTH SSL", lines[1])

			if tt.wantKind == 0 {
				require.NoError(t, err)
				assert.Contains(t, lines, "USER user")
				assert.Zero(t, ms.count("PBSZ"))
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Zero(t, ms.count("USER"))
		})
	}
}

func TestTLS_UntrustedCertificate(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.tlsConfig = selfSignedTLS(t)
	ms.start(t)

	c := newTestClient(t, ms)
	require.NoError(t, c.SetTLS(TLSFull, true))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindConnection, KindOf(err))
}

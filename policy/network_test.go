package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platform-net/validator-core/errs"
)

func TestCrossSchemeDenied(t *testing.T) {
	n, err := Normalize(NetworkPolicy{
		AllowInternet: true,
		HTTP: HTTPPolicy{
			AllowedHosts:   []string{"example.com"},
			AllowedSchemes: []string{"https"},
			AllowedPorts:   []uint16{443},
		},
	})
	require.NoError(t, err)

	err = n.IsHTTPRequestAllowed("http", "example.com", 443)
	require.Error(t, err)
	require.Equal(t, errs.PolicyViolation, errs.KindOf(err))
}

func TestSubdomainMatch(t *testing.T) {
	n, err := Normalize(NetworkPolicy{
		HTTP: HTTPPolicy{AllowedHosts: []string{"*.example.com", "plain.org"}},
	})
	require.NoError(t, err)

	require.True(t, n.IsHostAllowed("api.example.com"))
	require.True(t, n.IsHostAllowed("plain.org"))
	require.False(t, n.IsHostAllowed("notexample.com"))
	require.False(t, n.IsHostAllowed("example.com.evil.net"))
}

func TestPortZeroRejectedAtNormalization(t *testing.T) {
	_, err := Normalize(NetworkPolicy{HTTP: HTTPPolicy{AllowedPorts: []uint16{0}}})
	require.Error(t, err)
}

func TestIPRangeMatch(t *testing.T) {
	n, err := Normalize(NetworkPolicy{AllowedIPRanges: []string{"10.0.0.0/8"}})
	require.NoError(t, err)
	require.True(t, n.IsHostAllowed("10.1.2.3"))
	require.False(t, n.IsHostAllowed("11.1.2.3"))
}

func TestPathTraversalRejectedBeforeNormalization(t *testing.T) {
	p := TerminalPolicy{AllowedPaths: []string{"/data"}}
	_, err := p.ValidatePath("/data/../../etc/passwd")
	require.Error(t, err)
}

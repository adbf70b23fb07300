package connection

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bjoernblessin.de/groupstack/sequencing"
)

var (
	addr1 = netip.MustParseAddrPort("10.0.0.1:4000")
	addr2 = netip.MustParseAddrPort("10.0.0.2:4000")
	addr3 = netip.MustParseAddrPort("10.0.0.3:4000")
)

func TestAddKeepsMembersSortedAndUnique(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Add("team", addr3, addr1))
	require.NoError(t, d.Add("team", addr2, addr1))

	members, ok := d.Members("team")
	require.True(t, ok)
	assert.Equal(t, []netip.AddrPort{addr1, addr2, addr3}, members)
}

func TestRemove(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Add("team", addr1, addr2, addr3))
	require.NoError(t, d.Add("other"))

	require.NoError(t, d.Remove("team", addr2))
	members, _ := d.Members("team")
	assert.Equal(t, []netip.AddrPort{addr1, addr3}, members)

	require.NoError(t, d.Remove("other"))
	assert.Equal(t, []string{"team"}, d.Names())

	assert.ErrorIs(t, d.Remove("missing"), ErrUnknownGroup)
}

func TestResolve(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Add("team", addr2, addr1))

	tests := []struct {
		name    string
		target  string
		want    sequencing.Destination
		wantErr error
	}{
		{name: "Group", target: "team", want: sequencing.To(addr1, addr2)},
		{name: "Single address", target: "10.0.0.3:4000", want: sequencing.To(addr3)},
		{name: "Address list", target: "10.0.0.3:4000, 10.0.0.1:4000", want: sequencing.To(addr3, addr1)},
		{name: "Unknown group", target: "nobody", wantErr: ErrUnknownGroup},
		{name: "Missing port", target: "10.0.0.1:", wantErr: ErrInvalidAddress},
		{name: "IPv6", target: "[::1]:4000", wantErr: ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Resolve(tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidGroupName(t *testing.T) {
	d := NewDirectory()
	assert.ErrorIs(t, d.Add(""), ErrInvalidName)
	assert.ErrorIs(t, d.Add("a,b"), ErrInvalidName)
	assert.ErrorIs(t, d.Add("10.0.0.1:4000"), ErrInvalidName)
}

package sdntopo

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hardwareChain is a two switch chain, one host each, whose second switch is hardware
func hardwareChain(t *testing.T) *Topology {
	opts := untaggedChain(1, "1", "2")
	opts.HwDpid = "2"
	opts.SwitchMap = map[int]string{10: "eth2", 3: "eth0", 7: "eth1"}

	topo, err := BuildChain(context.Background(), &counterSerials{}, opts)
	require.NoError(t, err)
	return topo
}

func TestRemapPort(t *testing.T) {
	topo := &Topology{
		StartPort: 5,
		Hardware:  &HardwareContext{HwDpid: 42, HwPorts: []int{1, 2, 9, 48}, StartPort: 5},
	}

	tests := map[string]struct {
		dpid    Dpid
		port    int
		want    int
		wantErr bool
	}{
		"first hardware port": {dpid: 42, port: 5, want: 1},
		"second":              {dpid: 42, port: 6, want: 2},
		"last":                {dpid: 42, port: 8, want: 48},
		"past the end":        {dpid: 42, port: 9, wantErr: true},
		"below start":         {dpid: 42, port: 4, wantErr: true},
		"software switch":     {dpid: 41, port: 5, want: 5},
		"software high port":  {dpid: 43, port: 1000, want: 1000},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := topo.RemapPort(tt.dpid, tt.port)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrPortOutOfRange), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemapPortNoHardware(t *testing.T) {
	topo, err := BuildChain(context.Background(), &counterSerials{}, untaggedChain(1, "1", "2"))
	require.NoError(t, err)

	for _, dpid := range topo.Dpids() {
		port, err := topo.RemapPort(dpid, 6)
		require.NoError(t, err)
		assert.Equal(t, 6, port)
	}
}

func TestSoftwarePort(t *testing.T) {
	topo := hardwareChain(t)

	for _, port := range []int{5, 6, 7} {
		hwPort, err := topo.RemapPort(2, port)
		require.NoError(t, err)
		back, err := topo.SoftwarePort(2, hwPort)
		require.NoError(t, err)
		assert.Equal(t, port, back)
	}

	_, err := topo.SoftwarePort(2, 4)
	assert.True(t, errors.Is(err, ErrPortOutOfRange))

	port, err := topo.SoftwarePort(1, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, port)
}

func TestDpidPortsAndPeerLinks(t *testing.T) {
	topo := hardwareChain(t)

	ports, err := topo.DpidPorts(2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, ports)

	ports, err = topo.DpidPorts(1)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, ports)

	links, err := topo.DpidPeerLinks(1)
	require.NoError(t, err)
	assert.Equal(t, []PeerLink{{Port: 6, PeerDpid: 2, PeerPort: 7}}, links)

	links, err = topo.DpidPeerLinks(2)
	require.NoError(t, err)
	assert.Equal(t, []PeerLink{{Port: 7, PeerDpid: 1, PeerPort: 6}}, links)

	// the stored tables keep the fabric's numbering
	sw, err := topo.SwitchByDpid(2)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, sw.Ports)
	assert.Equal(t, []PeerLink{{Port: 6, PeerDpid: 1, PeerPort: 6}}, sw.PeerLinks)

	_, err = topo.DpidPorts(99)
	assert.True(t, errors.Is(err, ErrUnknownDpid))
	_, err = topo.DpidPeerLinks(99)
	assert.True(t, errors.Is(err, ErrUnknownDpid))
}

func TestPortMap(t *testing.T) {
	topo := hardwareChain(t)

	portMap, err := topo.PortMap(2)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"port_1": 3, "port_2": 7}, portMap)

	portMap, err = topo.PortMap(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"port_1": 5, "port_2": 6}, portMap)

	_, err = topo.PortMap(3)
	assert.Error(t, err)
}

func TestRemapPeerLinkBothEnds(t *testing.T) {
	topo := hardwareChain(t)

	// a link stored under the hardware switch remaps its own end
	link, err := topo.RemapPeerLink(2, PeerLink{Port: 5, PeerDpid: 1, PeerPort: 9})
	require.NoError(t, err)
	assert.Equal(t, PeerLink{Port: 3, PeerDpid: 1, PeerPort: 9}, link)

	// and one stored under a software switch remaps the peer end
	link, err = topo.RemapPeerLink(1, PeerLink{Port: 9, PeerDpid: 2, PeerPort: 7})
	require.NoError(t, err)
	assert.Equal(t, PeerLink{Port: 9, PeerDpid: 2, PeerPort: 10}, link)

	_, err = topo.RemapPeerLink(1, PeerLink{Port: 9, PeerDpid: 2, PeerPort: 8})
	assert.True(t, errors.Is(err, ErrPortOutOfRange))
}

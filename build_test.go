package sdntopo

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChainPorts(t *testing.T) {
	topo, err := BuildChain(context.Background(), &counterSerials{}, untaggedChain(2, "1", "2", "3"))
	require.NoError(t, err)

	want := map[Dpid][]int{
		1: {5, 6, 7},
		2: {5, 6, 7, 8},
		3: {5, 6, 7},
	}
	if diff := cmp.Diff(want, portsByDpid(topo)); diff != "" {
		t.Errorf("switch ports mismatch (-want +got):\n%s", diff)
	}

	wantLinks := map[Dpid][]PeerLink{
		1: {{Port: 7, PeerDpid: 2, PeerPort: 7}},
		2: {{Port: 7, PeerDpid: 1, PeerPort: 7}, {Port: 8, PeerDpid: 3, PeerPort: 7}},
		3: {{Port: 7, PeerDpid: 2, PeerPort: 8}},
	}
	for dpid, links := range wantLinks {
		got, err := topo.DpidPeerLinks(dpid)
		require.NoError(t, err)
		assert.Equal(t, links, got, "dpid %s", dpid)
	}

	assert.Equal(t, []Dpid{1, 2, 3}, topo.Dpids())
	assert.False(t, topo.IsRing())
	assert.Nil(t, topo.Hardware)
}

func TestBuildChainPortCounts(t *testing.T) {
	tests := map[string]struct {
		dpids        []string
		nUntagged    int
		linksPerHost int
		s2sLinks     int
		ring         bool
		wantCounts   []int
	}{
		"single switch": {
			dpids: []string{"1"}, nUntagged: 2, linksPerHost: 1, s2sLinks: 1,
			wantCounts: []int{2},
		},
		"two switches": {
			dpids: []string{"1", "2"}, nUntagged: 1, linksPerHost: 1, s2sLinks: 2,
			wantCounts: []int{3, 3},
		},
		"four switches": {
			dpids: []string{"1", "2", "3", "4"}, nUntagged: 3, linksPerHost: 2, s2sLinks: 2,
			wantCounts: []int{8, 10, 10, 8},
		},
		"ring of two is a chain": {
			dpids: []string{"1", "2"}, nUntagged: 1, linksPerHost: 1, s2sLinks: 1, ring: true,
			wantCounts: []int{2, 2},
		},
		"ring of three": {
			dpids: []string{"1", "2", "3"}, nUntagged: 1, linksPerHost: 1, s2sLinks: 1, ring: true,
			wantCounts: []int{3, 3, 3},
		},
		"ring of four": {
			dpids: []string{"1", "2", "3", "4"}, nUntagged: 2, linksPerHost: 1, s2sLinks: 2, ring: true,
			wantCounts: []int{6, 6, 6, 6},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			opts := untaggedChain(tt.nUntagged, tt.dpids...)
			opts.LinksPerHost = tt.linksPerHost
			opts.SwitchToSwitchLinks = tt.s2sLinks
			opts.StackRing = tt.ring

			topo, err := BuildChain(context.Background(), &counterSerials{}, opts)
			require.NoError(t, err)

			counts := []int{}
			for _, sw := range topo.Switches {
				counts = append(counts, len(sw.Ports))
			}
			assert.Equal(t, tt.wantCounts, counts)
			assert.Len(t, topo.PortOrder, tt.nUntagged*tt.linksPerHost+2*tt.s2sLinks+1)
		})
	}
}

func TestBuildChainRing(t *testing.T) {
	opts := untaggedChain(1, "1", "2", "3")
	opts.StackRing = true

	topo, err := BuildChain(context.Background(), &counterSerials{}, opts)
	require.NoError(t, err)

	links, err := topo.DpidPeerLinks(1)
	require.NoError(t, err)
	assert.Contains(t, links, PeerLink{Port: 7, PeerDpid: 3, PeerPort: 7})
	assert.True(t, topo.IsRing())
	assert.True(t, topo.Connected())
}

func TestPeerLinksMirrored(t *testing.T) {
	opts := untaggedChain(2, "1", "2", "3", "4", "5")
	opts.SwitchToSwitchLinks = 3
	opts.StackRing = true
	opts.PortOrder = []int{3, 1, 0, 2}

	topo, err := BuildChain(context.Background(), &counterSerials{}, opts)
	require.NoError(t, err)

	total := 0
	for _, sw := range topo.Switches {
		for _, link := range sw.PeerLinks {
			peer, err := topo.SwitchByDpid(link.PeerDpid)
			require.NoError(t, err)
			assert.Contains(t, peer.PeerLinks, link.Mirror(sw.Dpid), "switch %s port %d", sw.Name, link.Port)
			assert.Contains(t, sw.Ports, link.Port)
			total++
		}
	}
	// five groups of three cables, two ends each
	assert.Equal(t, 30, total)
}

func TestBuildPortOrder(t *testing.T) {
	opts := untaggedChain(2, "1")
	opts.PortOrder = []int{1, 0}

	topo, err := BuildSwitches(context.Background(), &counterSerials{}, opts)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 5}, topo.Switches[0].Ports)
	assert.Equal(t, []int{1, 0, 2}, topo.PortOrder)

	opts.PortOrder = []int{0, 0}
	_, err = BuildSwitches(context.Background(), &counterSerials{}, opts)
	assert.Error(t, err)
}

func TestBuildHosts(t *testing.T) {
	opts := untaggedChain(2, "1", "2")
	opts.NTagged = 1
	opts.NExtended = 1
	opts.ExtendedClass = "dot1x"
	opts.TmpDir = "/tmp/x"
	opts.HostNamespace = map[int]bool{1: false}

	topo, err := BuildSwitches(context.Background(), &counterSerials{}, opts)
	require.NoError(t, err)

	require.Len(t, topo.Switches, 2)
	assert.Equal(t, "s01", topo.Switches[0].Name)
	assert.Equal(t, "s02", topo.Switches[1].Name)
	assert.Empty(t, topo.Switches[0].PeerLinks)
	assert.False(t, topo.Connected())

	names := []string{}
	for _, host := range topo.SwitchHosts("s02") {
		names = append(names, host.Name)
	}
	assert.Equal(t, []string{"t021", "u021", "u022", "e021"}, names)
	assert.Len(t, topo.Hosts, 8)

	hosts := topo.SwitchHosts("s01")
	assert.Equal(t, 100, hosts[0].Vlan)
	assert.True(t, hosts[1].InNamespace)
	assert.False(t, hosts[2].InNamespace)
	assert.Equal(t, "dot1x", hosts[3].Class)
	assert.Equal(t, "/tmp/x", hosts[3].TmpDir)

	for _, link := range topo.Links {
		assert.NotNil(t, topo.SwitchByName(link.Node1), "link %s-%s", link.Node1, link.Node2)
		assert.Equal(t, "1ms", link.Delay)
		assert.True(t, link.UseHTB)
	}
	assert.Equal(t, []int{5, 6, 7, 8}, topo.Switches[1].Ports)

	name, err := topo.DpidName(2)
	require.NoError(t, err)
	assert.Equal(t, "s02", name)
}

func TestBuildLinksPerHost(t *testing.T) {
	opts := untaggedChain(2, "1")
	opts.LinksPerHost = 3

	topo, err := BuildSwitches(context.Background(), &counterSerials{}, opts)
	require.NoError(t, err)

	assert.Equal(t, []int{5, 6, 7, 8, 9, 10}, topo.Switches[0].Ports)
	require.Len(t, topo.Links, 6)
	assert.Equal(t, "u011", topo.Links[2].Node2)
	assert.Equal(t, "u012", topo.Links[3].Node2)
}

func TestBuildHardwareSwitch(t *testing.T) {
	opts := untaggedChain(1, "1", "2")
	opts.HwDpid = "2"
	opts.SwitchMap = map[int]string{10: "eth2", 3: "eth0", 7: "eth1"}

	topo, err := BuildChain(context.Background(), &counterSerials{}, opts)
	require.NoError(t, err)

	require.NotNil(t, topo.Hardware)
	assert.Equal(t, Dpid(2), topo.Hardware.HwDpid)
	assert.Equal(t, []int{3, 7, 10}, topo.Hardware.HwPorts)

	hw, err := topo.SwitchByDpid(2)
	require.NoError(t, err)
	assert.True(t, hw.Controllerless)
	assert.Equal(t, Dpid(3), hw.BridgeDpid)

	sw, err := topo.SwitchByDpid(1)
	require.NoError(t, err)
	assert.False(t, sw.Controllerless)
	assert.Equal(t, Dpid(1), sw.BridgeDpid)
}

func TestBuildHardwareNotInTopology(t *testing.T) {
	opts := untaggedChain(1, "1", "2")
	opts.HwDpid = "9"

	topo, err := BuildChain(context.Background(), &counterSerials{}, opts)
	require.NoError(t, err)
	assert.Nil(t, topo.Hardware)
}

func TestBuildErrors(t *testing.T) {
	tests := map[string]struct {
		opts    func() *BuildOptions
		serials *counterSerials
		wantErr error
	}{
		"no hardware ports": {
			opts: func() *BuildOptions {
				opts := untaggedChain(1, "1", "3")
				opts.HwDpid = "1"
				return opts
			},
			serials: &counterSerials{},
			wantErr: ErrNoHardwarePorts,
		},
		"hardware ports exhausted": {
			opts: func() *BuildOptions {
				opts := untaggedChain(2, "1", "3")
				opts.HwDpid = "1"
				opts.SwitchMap = map[int]string{1: "eth0", 2: "eth1"}
				return opts
			},
			serials: &counterSerials{},
			wantErr: ErrHardwarePortsExhausted,
		},
		"allocator down": {
			opts:    func() *BuildOptions { return untaggedChain(1, "1") },
			serials: &counterSerials{err: errAllocatorDown},
			wantErr: errAllocatorDown,
		},
		"serials used up": {
			opts:    func() *BuildOptions { return untaggedChain(1, "1", "2") },
			serials: &counterSerials{next: MaxSerial - 1},
			wantErr: ErrTopologyTooLarge,
		},
		"invalid dpid": {
			opts:    func() *BuildOptions { return untaggedChain(1, "one") },
			serials: &counterSerials{},
			wantErr: ErrInvalidDpid,
		},
		"invalid dpid among other problems": {
			opts: func() *BuildOptions {
				opts := untaggedChain(1, "1", "one")
				opts.LinksPerHost = -1
				return opts
			},
			serials: &counterSerials{},
			wantErr: ErrInvalidDpid,
		},
		"hardware port offset past the hardware ports": {
			opts: func() *BuildOptions {
				// bridge ports 8, 6, 5: three ports, but offset 3 has no hardware port
				opts := untaggedChain(2, "1", "3")
				opts.HwDpid = "1"
				opts.SwitchMap = map[int]string{1: "eth0", 2: "eth1", 3: "eth2"}
				opts.PortOrder = []int{3, 1, 0, 2}
				return opts
			},
			serials: &counterSerials{},
			wantErr: ErrHardwarePortsExhausted,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := BuildChain(context.Background(), tt.serials, tt.opts())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestBuildHardwarePermutedPortOrder(t *testing.T) {
	opts := untaggedChain(2, "1", "3")
	opts.HwDpid = "1"
	opts.SwitchMap = map[int]string{1: "eth0", 2: "eth1", 3: "eth2", 4: "eth3"}
	opts.PortOrder = []int{3, 1, 0, 2}

	topo, err := BuildChain(context.Background(), &counterSerials{}, opts)
	require.NoError(t, err)

	hw, err := topo.SwitchByDpid(1)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 6, 5}, hw.Ports)

	ports, err := topo.DpidPorts(1)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 1}, ports)
}

func TestSwitchLookups(t *testing.T) {
	topo, err := BuildChain(context.Background(), &counterSerials{}, untaggedChain(1, "7"))
	require.NoError(t, err)

	_, err = topo.SwitchByDpid(8)
	assert.True(t, errors.Is(err, ErrUnknownDpid))
	_, err = topo.DpidName(8)
	assert.Error(t, err)
	assert.Nil(t, topo.SwitchByName("s99"))
	assert.Nil(t, topo.SwitchHosts("s99"))
}

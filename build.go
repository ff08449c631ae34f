package sdntopo

// file build.go puts a topology together: one switch per dpid, each with its own
// hosts, optionally strung together into a chain or a ring of datapaths

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

var (
	// ErrNoHardwarePorts is returned when a switch is the hardware datapath but no hardware ports are known
	ErrNoHardwarePorts = errors.New("hardware dpid requires hardware ports")

	// ErrHardwarePortsExhausted is returned when the hardware switch needs more ports than it has
	ErrHardwarePortsExhausted = errors.New("not enough hardware ports")
)

// defaultTestName is the allocator request name used when the options give none
const defaultTestName = "sdntopo"

// SerialSource hands out a serial number unique among all concurrently running
// tests, one per call. serial.Client is the implementation backed by the shared allocator.
type SerialSource interface {
	GetSerial(ctx context.Context, name string) (uint, error)
}

// Topology is a built test topology. It owns every table the harness queries
// afterwards; nothing is shared between two Topology values.
type Topology struct {
	Name                string
	StartPort           int
	SwitchToSwitchLinks int

	// PortOrder maps the i-th port a switch allocates to its offset from StartPort
	PortOrder []int

	// Hardware is nil unless one switch of the topology is the hardware datapath
	Hardware *HardwareContext

	// Switches, Hosts and Links are in creation order
	Switches []*SwitchFrame
	Hosts    []*HostFrame
	Links    []*LinkFrame

	switchByName  map[string]*SwitchFrame
	switchByDpid  map[Dpid]*SwitchFrame
	hostsBySwitch map[string][]*HostFrame

	// switch graph state, built on first use by routes.go
	graphMu  sync.Mutex
	graph    *simple.UndirectedGraph
	cachedSP map[int64]path.Shortest
}

// newTopology validates the options and prepares an empty topology sized for
// maxPorts ports per switch
func newTopology(opts *BuildOptions, maxPorts int) (*Topology, []Dpid, Dpid, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, 0, errors.Wrap(err, "invalid build options")
	}
	dpids, hwDpid, err := opts.parsedDpids()
	if err != nil {
		return nil, nil, 0, err
	}

	portOrder := ExtendPortOrder(opts.PortOrder, maxPorts)
	if err := ValidatePortOrder(portOrder); err != nil {
		return nil, nil, 0, errors.Wrap(err, "invalid port order")
	}

	t := &Topology{
		Name:                opts.TestName,
		StartPort:           opts.StartPort,
		SwitchToSwitchLinks: opts.SwitchToSwitchLinks,
		PortOrder:           portOrder,
		Switches:            []*SwitchFrame{},
		Hosts:               []*HostFrame{},
		Links:               []*LinkFrame{},
		switchByName:        make(map[string]*SwitchFrame),
		switchByDpid:        make(map[Dpid]*SwitchFrame),
		hostsBySwitch:       make(map[string][]*HostFrame),
	}

	for _, dpid := range dpids {
		if hwDpid == 0 || dpid != hwDpid {
			continue
		}
		hwPorts := opts.HwPorts()
		if len(hwPorts) == 0 {
			return nil, nil, 0, errors.Wrapf(ErrNoHardwarePorts, "dpid %s", hwDpid)
		}
		t.Hardware = &HardwareContext{HwDpid: hwDpid, HwPorts: hwPorts, StartPort: opts.StartPort}
	}
	if hwDpid != 0 && t.Hardware == nil {
		logger.WithField("hw_dpid", hwDpid.String()).Debug("hardware dpid is not part of this topology")
	}

	return t, dpids, hwDpid, nil
}

// port returns the port number of the index-th port allocated on a switch
func (t *Topology) port(index int) int {
	return t.StartPort + t.PortOrder[index]
}

// addSwitchPosition asks for a serial number and creates the hosts and the switch
// of one position of the topology
func (t *Topology) addSwitchPosition(ctx context.Context, serials SerialSource, opts *BuildOptions,
	dpid, hwDpid Dpid) (*SwitchFrame, []*HostFrame, error) {

	name := opts.TestName
	if name == "" {
		name = defaultTestName
	}
	serialno, err := serials.GetSerial(ctx, name)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "serial number for dpid %s", dpid)
	}
	prefix, err := SidPrefix(serialno)
	if err != nil {
		return nil, nil, err
	}

	hosts := make([]*HostFrame, 0, opts.hostsPerSwitch())
	for n := 0; n < opts.NTagged; n++ {
		hosts = append(hosts, CreateTaggedHost(prefix, opts.TaggedVid, n))
	}
	for n := 0; n < opts.NUntagged; n++ {
		inNamespace, present := opts.HostNamespace[n]
		if !present {
			inNamespace = true
		}
		hosts = append(hosts, CreateUntaggedHost(prefix, n, inNamespace))
	}
	for n := 0; n < opts.NExtended; n++ {
		hosts = append(hosts, CreateExtendedHost(prefix, n, opts.ExtendedClass, opts.TmpDir))
	}

	sw := CreateSwitch(prefix, dpid, hwDpid, opts.OvsType)
	if _, present := t.switchByName[sw.Name]; present {
		return nil, nil, errors.Errorf("serial %d gave prefix %s twice", serialno, prefix)
	}

	t.Hosts = append(t.Hosts, hosts...)
	t.Switches = append(t.Switches, sw)
	t.switchByName[sw.Name] = sw
	t.switchByDpid[dpid] = sw
	t.hostsBySwitch[sw.Name] = hosts

	return sw, hosts, nil
}

// addLinks cables every host to the switch linksPerHost times, giving out the
// switch's ports in port order. It returns the number of ports used, which is
// where the switch's next port allocation starts.
func (t *Topology) addLinks(sw *SwitchFrame, hosts []*HostFrame, linksPerHost int) int {
	index := 0
	for _, host := range hosts {
		for i := 0; i < linksPerHost; i++ {
			port := t.port(index)
			t.Links = append(t.Links, &LinkFrame{
				Node1:  sw.Name,
				Node2:  host.Name,
				Port1:  port,
				Delay:  hostLinkDelay,
				UseHTB: true,
			})
			sw.Ports = append(sw.Ports, port)
			index++
		}
	}
	return index
}

// connectSwitches cables switch a to switch b count times. Each cable takes the
// next free port of both switches and is recorded as a mirrored pair of peer
// links, one under each switch.
func (t *Topology) connectSwitches(a, b *SwitchFrame, count int, nextIndex map[string]int) {
	for i := 0; i < count; i++ {
		port1, port2 := t.port(nextIndex[a.Name]), t.port(nextIndex[b.Name])
		t.Links = append(t.Links, &LinkFrame{Node1: a.Name, Node2: b.Name, Port1: port1, Port2: port2})

		a.Ports = append(a.Ports, port1)
		b.Ports = append(b.Ports, port2)

		link := PeerLink{Port: port1, PeerDpid: b.Dpid, PeerPort: port2}
		a.PeerLinks = append(a.PeerLinks, link)
		b.PeerLinks = append(b.PeerLinks, link.Mirror(a.Dpid))

		nextIndex[a.Name]++
		nextIndex[b.Name]++

		logger.WithFields(logrus.Fields{
			"src": a.Name, "src_port": port1, "dst": b.Name, "dst_port": port2,
		}).Debug("switch link")
	}
}

// checkHardwarePorts makes sure every port of the hardware switch has a hardware
// port behind it. Ports map by their offset from the start port, so with a
// permuted port order a few ports can still need a hardware port far down the list.
func (t *Topology) checkHardwarePorts() error {
	if t.Hardware == nil {
		return nil
	}
	sw := t.switchByDpid[t.Hardware.HwDpid]
	for _, port := range sw.Ports {
		if _, err := t.Hardware.remap(port); err != nil {
			return errors.Wrapf(ErrHardwarePortsExhausted, "dpid %s uses bridge port %d, %d hardware ports known",
				sw.Dpid, port, len(t.Hardware.HwPorts))
		}
	}
	return nil
}

// finish runs the checks that need the complete topology and logs the result
func (t *Topology) finish() (*Topology, error) {
	if err := t.checkHardwarePorts(); err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"name":     t.Name,
		"switches": len(t.Switches),
		"hosts":    len(t.Hosts),
		"links":    len(t.Links),
	}).Info("topology built")
	return t, nil
}

// BuildSwitches builds one switch per dpid, each with its own hosts and no
// links between the switches
func BuildSwitches(ctx context.Context, serials SerialSource, opts *BuildOptions) (*Topology, error) {
	maxPorts := opts.hostsPerSwitch() * opts.LinksPerHost
	t, dpids, hwDpid, err := newTopology(opts, maxPorts)
	if err != nil {
		return nil, err
	}

	for _, dpid := range dpids {
		sw, hosts, err := t.addSwitchPosition(ctx, serials, opts, dpid, hwDpid)
		if err != nil {
			return nil, err
		}
		t.addLinks(sw, hosts, opts.LinksPerHost)
	}
	return t.finish()
}

// BuildChain builds a string of datapaths: one switch per dpid, each with its
// own hosts, switch i cabled to switch i+1 by SwitchToSwitchLinks parallel links.
//
//	              Hosts
//	              ||||
//	 +----+       +----+       +----+
//	-+1   |       |1234|       |   1+-
//	-+2   |       |    |       |   2+-  Hosts
//	-+3   |       |    |       |   3+-
//	-+4  5+-------+5  6+-------+5  4+-
//	 +----+       +----+       +----+
//
// The end switches carry their host ports plus one group of switch ports,
// the others two groups. With StackRing and at least three switches the last
// switch is also cabled to the first.
func BuildChain(ctx context.Context, serials SerialSource, opts *BuildOptions) (*Topology, error) {
	maxPorts := opts.hostsPerSwitch()*opts.LinksPerHost + 2*opts.SwitchToSwitchLinks
	t, dpids, hwDpid, err := newTopology(opts, maxPorts)
	if err != nil {
		return nil, err
	}

	var first, last *SwitchFrame
	nextIndex := make(map[string]int)
	for _, dpid := range dpids {
		sw, hosts, err := t.addSwitchPosition(ctx, serials, opts, dpid, hwDpid)
		if err != nil {
			return nil, err
		}
		nextIndex[sw.Name] = t.addLinks(sw, hosts, opts.LinksPerHost)
		if first == nil {
			first = sw
		} else {
			t.connectSwitches(last, sw, opts.SwitchToSwitchLinks, nextIndex)
		}
		last = sw
	}

	if opts.StackRing {
		if len(t.Switches) >= 3 {
			t.connectSwitches(first, last, opts.SwitchToSwitchLinks, nextIndex)
		} else {
			logger.WithField("switches", len(t.Switches)).Warn("stack ring needs at least 3 switches, not closing the ring")
		}
	}
	return t.finish()
}

// SwitchByDpid returns the switch with the given (configured) dpid
func (t *Topology) SwitchByDpid(dpid Dpid) (*SwitchFrame, error) {
	sw, present := t.switchByDpid[dpid]
	if !present {
		return nil, errors.Wrapf(ErrUnknownDpid, "dpid %s", dpid)
	}
	return sw, nil
}

// SwitchByName returns the switch with the given name, nil if there is none
func (t *Topology) SwitchByName(name string) *SwitchFrame {
	return t.switchByName[name]
}

// DpidName returns the name of the switch with the given dpid
func (t *Topology) DpidName(dpid Dpid) (string, error) {
	sw, err := t.SwitchByDpid(dpid)
	if err != nil {
		return "", err
	}
	return sw.Name, nil
}

// SwitchHosts returns the hosts attached to the named switch, in link order
func (t *Topology) SwitchHosts(name string) []*HostFrame {
	return t.hostsBySwitch[name]
}

// Dpids returns the configured dpids of the switches in creation order
func (t *Topology) Dpids() []Dpid {
	dpids := make([]Dpid, len(t.Switches))
	for idx, sw := range t.Switches {
		dpids[idx] = sw.Dpid
	}
	return dpids
}

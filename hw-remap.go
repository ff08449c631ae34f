package sdntopo

// Hardware switch port virtualization through a transparent OVS attachment
// bridge (patch panel).
//
// The controller talks to the hardware switch, so it has to be given the
// hardware switch's OpenFlow ports rather than the ports of the software bridge
// the test fabric is cabled to. The i-th port of the bridge (counting from the
// start port) is patched to the i-th hardware port in ascending order.

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

var (
	// ErrUnknownDpid is returned for a dpid that is not a switch of the topology
	ErrUnknownDpid = errors.New("unknown dpid")

	// ErrPortOutOfRange is returned for a port that has no counterpart on the hardware switch
	ErrPortOutOfRange = errors.New("port out of range")
)

// HardwareContext identifies the one hardware datapath of a topology
type HardwareContext struct {
	HwDpid Dpid

	// HwPorts are the hardware port numbers, ascending
	HwPorts []int

	StartPort int
}

// remap maps a bridge port of the hardware switch to the hardware port behind it
func (hc *HardwareContext) remap(port int) (int, error) {
	offset := port - hc.StartPort
	if offset < 0 || offset >= len(hc.HwPorts) {
		return 0, errors.Wrapf(ErrPortOutOfRange, "bridge port %d of dpid %s", port, hc.HwDpid)
	}
	return hc.HwPorts[offset], nil
}

// RemapPort maps a port number of the software fabric to the port number the
// controller sees. Only ports of the hardware datapath change.
func (t *Topology) RemapPort(dpid Dpid, port int) (int, error) {
	if t.Hardware == nil || dpid != t.Hardware.HwDpid {
		return port, nil
	}
	return t.Hardware.remap(port)
}

// SoftwarePort is the inverse of RemapPort: it maps a port number the
// controller sees to the port of the software fabric
func (t *Topology) SoftwarePort(dpid Dpid, port int) (int, error) {
	if t.Hardware == nil || dpid != t.Hardware.HwDpid {
		return port, nil
	}
	offset := slices.Index(t.Hardware.HwPorts, port)
	if offset < 0 {
		return 0, errors.Wrapf(ErrPortOutOfRange, "hardware port %d of dpid %s", port, dpid)
	}
	return t.Hardware.StartPort + offset, nil
}

// RemapPeerLink remaps both ends of a peer link stored under dpid. The two ends
// may belong to different datapaths, only one of which can be the hardware one.
func (t *Topology) RemapPeerLink(dpid Dpid, link PeerLink) (PeerLink, error) {
	port, err := t.RemapPort(dpid, link.Port)
	if err != nil {
		return PeerLink{}, err
	}
	peerPort, err := t.RemapPort(link.PeerDpid, link.PeerPort)
	if err != nil {
		return PeerLink{}, err
	}
	return PeerLink{Port: port, PeerDpid: link.PeerDpid, PeerPort: peerPort}, nil
}

// DpidPorts returns every port of a switch, as the controller numbers them
func (t *Topology) DpidPorts(dpid Dpid) ([]int, error) {
	sw, err := t.SwitchByDpid(dpid)
	if err != nil {
		return nil, err
	}
	ports := make([]int, 0, len(sw.Ports))
	for _, port := range sw.Ports {
		remapped, err := t.RemapPort(dpid, port)
		if err != nil {
			return nil, err
		}
		ports = append(ports, remapped)
	}
	return ports, nil
}

// DpidPeerLinks returns the peer links of a switch, as the controller numbers them
func (t *Topology) DpidPeerLinks(dpid Dpid) ([]PeerLink, error) {
	sw, err := t.SwitchByDpid(dpid)
	if err != nil {
		return nil, err
	}
	links := make([]PeerLink, 0, len(sw.PeerLinks))
	for _, link := range sw.PeerLinks {
		remapped, err := t.RemapPeerLink(dpid, link)
		if err != nil {
			return nil, err
		}
		links = append(links, remapped)
	}
	return links, nil
}

// PortMap names the ports of a switch port_1, port_2, ... in allocation order
// and gives the controller's number for each
func (t *Topology) PortMap(dpid Dpid) (map[string]int, error) {
	ports, err := t.DpidPorts(dpid)
	if err != nil {
		return nil, err
	}
	portMap := make(map[string]int, len(ports))
	for idx, port := range ports {
		portMap[fmt.Sprintf("port_%d", idx+1)] = port
	}
	return portMap, nil
}

package sdntopo

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Transform converts a Topology into a TopoDesc, for serialization
func (t *Topology) Transform() TopoDesc {
	td := TopoDesc{
		Name:                t.Name,
		StartPort:           t.StartPort,
		SwitchToSwitchLinks: t.SwitchToSwitchLinks,
		PortOrder:           slices.Clone(t.PortOrder),
		Switches:            make([]SwitchDesc, 0, len(t.Switches)),
		Hosts:               make([]HostDesc, 0, len(t.Hosts)),
		Links:               make([]LinkDesc, 0, len(t.Links)),
	}
	if t.Hardware != nil {
		td.HwDpid = t.Hardware.HwDpid.String()
		td.HwPorts = slices.Clone(t.Hardware.HwPorts)
	}

	for _, sw := range t.Switches {
		td.Switches = append(td.Switches, sw.Transform())
	}
	for _, host := range t.Hosts {
		td.Hosts = append(td.Hosts, host.Transform())
	}
	for _, link := range t.Links {
		td.Links = append(td.Links, link.Transform())
	}
	return td
}

// WriteToFile stores the topology to a yaml or json file, chosen by extension
func (t *Topology) WriteToFile(filename string) error {
	td := t.Transform()
	return td.WriteToFile(filename)
}

// FromDesc rebuilds a Topology from its serialized description, so that a
// process other than the one that built it can answer port queries
func FromDesc(td *TopoDesc) (*Topology, error) {
	t := &Topology{
		Name:                td.Name,
		StartPort:           td.StartPort,
		SwitchToSwitchLinks: td.SwitchToSwitchLinks,
		PortOrder:           slices.Clone(td.PortOrder),
		Switches:            make([]*SwitchFrame, 0, len(td.Switches)),
		Hosts:               make([]*HostFrame, 0, len(td.Hosts)),
		Links:               make([]*LinkFrame, 0, len(td.Links)),
		switchByName:        make(map[string]*SwitchFrame),
		switchByDpid:        make(map[Dpid]*SwitchFrame),
		hostsBySwitch:       make(map[string][]*HostFrame),
	}

	for _, sd := range td.Switches {
		dpid, err := ParseDpid(sd.Dpid)
		if err != nil {
			return nil, errors.Wrapf(err, "switch %s", sd.Name)
		}
		bridgeDpid, err := ParseDpid(sd.BridgeDpid)
		if err != nil {
			return nil, errors.Wrapf(err, "switch %s", sd.Name)
		}
		if _, present := t.switchByDpid[dpid]; present {
			return nil, errors.Errorf("dpid %s used by more than one switch", dpid)
		}
		sw := &SwitchFrame{
			Name:           sd.Name,
			Prefix:         sd.Prefix,
			Dpid:           dpid,
			BridgeDpid:     bridgeDpid,
			Controllerless: sd.Controllerless,
			OvsType:        sd.OvsType,
			Ports:          append([]int{}, sd.Ports...),
			PeerLinks:      append([]PeerLink{}, sd.PeerLinks...),
		}
		t.Switches = append(t.Switches, sw)
		t.switchByName[sw.Name] = sw
		t.switchByDpid[dpid] = sw
	}

	// a host belongs to the switch its links start from
	hostSwitch := make(map[string]string)
	for _, ld := range td.Links {
		t.Links = append(t.Links, &LinkFrame{
			Node1:  ld.Node1,
			Node2:  ld.Node2,
			Port1:  ld.Port1,
			Port2:  ld.Port2,
			Delay:  ld.Delay,
			UseHTB: ld.UseHTB,
		})
		if _, present := t.switchByName[ld.Node1]; present {
			if _, present := hostSwitch[ld.Node2]; !present {
				hostSwitch[ld.Node2] = ld.Node1
			}
		}
	}

	for _, hd := range td.Hosts {
		host := &HostFrame{
			Name:        hd.Name,
			Role:        HostRole(hd.Role),
			HostN:       hd.HostN,
			Vlan:        hd.Vlan,
			CPU:         hd.CPU,
			InNamespace: hd.InNamespace,
			Class:       hd.Class,
			TmpDir:      hd.TmpDir,
		}
		t.Hosts = append(t.Hosts, host)

		if swName, present := hostSwitch[host.Name]; present {
			t.hostsBySwitch[swName] = append(t.hostsBySwitch[swName], host)
		}
	}

	if td.HwDpid != "" {
		hwDpid, err := ParseDpid(td.HwDpid)
		if err != nil {
			return nil, errors.Wrap(err, "hardware dpid")
		}
		if _, present := t.switchByDpid[hwDpid]; present {
			if len(td.HwPorts) == 0 {
				return nil, errors.Wrapf(ErrNoHardwarePorts, "dpid %s", hwDpid)
			}
			hwPorts := slices.Clone(td.HwPorts)
			slices.Sort(hwPorts)
			t.Hardware = &HardwareContext{HwDpid: hwDpid, HwPorts: hwPorts, StartPort: td.StartPort}
		}
	}

	if err := t.checkHardwarePorts(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTopology reads a topology written by WriteToFile
func LoadTopology(filename string) (*Topology, error) {
	td, err := ReadTopoDesc(filename, useYAMLFor(filename), nil)
	if err != nil {
		return nil, err
	}
	return FromDesc(td)
}

package sdntopo

// file desc-topo.go holds the structs describing hosts, switches and links of a
// test topology, in two forms. A 'Frame' is what the builder manipulates while the
// topology is put together; a 'Desc' is the pointer free, serializable form that is
// written to file and handed to other processes of the test harness.

import (
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// HostRole says which kind of test host a HostFrame describes
type HostRole string

const (
	TaggedRole   HostRole = "tagged"
	UntaggedRole HostRole = "untagged"
	ExtendedRole HostRole = "extended"
)

// rolePrefix gives the first letter of the names of hosts of each role
var rolePrefix = map[HostRole]string{
	TaggedRole:   "t",
	UntaggedRole: "u",
	ExtendedRole: "e",
}

// HostFrame describes a test host attached to one switch
type HostFrame struct {
	Name string
	Role HostRole

	// HostN is the 0-based index of the host among the hosts of its role on its switch
	HostN int

	// Vlan is the tag put on the default interface of a tagged host, 0 otherwise
	Vlan int

	// CPU is the share of a cpu the host may use, 0 means unlimited
	CPU float64

	// InNamespace is false for hosts that must not be independently addressable
	InNamespace bool

	// Class and TmpDir are only used by extended hosts: the name of the host
	// implementation the harness should instantiate and its scratch directory
	Class  string
	TmpDir string
}

// HostDesc is the serializable version of a HostFrame
type HostDesc struct {
	Name        string  `json:"name" yaml:"name"`
	Role        string  `json:"role" yaml:"role"`
	HostN       int     `json:"hostn" yaml:"hostn"`
	Vlan        int     `json:"vlan,omitempty" yaml:"vlan,omitempty"`
	CPU         float64 `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	InNamespace bool    `json:"innamespace" yaml:"innamespace"`
	Class       string  `json:"class,omitempty" yaml:"class,omitempty"`
	TmpDir      string  `json:"tmpdir,omitempty" yaml:"tmpdir,omitempty"`
}

// Transform converts a HostFrame into a HostDesc
func (hf *HostFrame) Transform() HostDesc {
	return HostDesc{
		Name:        hf.Name,
		Role:        string(hf.Role),
		HostN:       hf.HostN,
		Vlan:        hf.Vlan,
		CPU:         hf.CPU,
		InNamespace: hf.InNamespace,
		Class:       hf.Class,
		TmpDir:      hf.TmpDir,
	}
}

// PeerLink is one end of a switch to switch cable, seen from the switch
// that stores it
type PeerLink struct {
	Port     int  `json:"port" yaml:"port"`
	PeerDpid Dpid `json:"peerdpid" yaml:"peerdpid"`
	PeerPort int  `json:"peerport" yaml:"peerport"`
}

// Mirror returns the same cable seen from the peer, given the dpid of the switch holding pl
func (pl PeerLink) Mirror(dpid Dpid) PeerLink {
	return PeerLink{Port: pl.PeerPort, PeerDpid: dpid, PeerPort: pl.Port}
}

// SwitchFrame describes one datapath of the topology
type SwitchFrame struct {
	Name   string
	Prefix string

	// Dpid is the datapath id the controller is configured with
	Dpid Dpid

	// BridgeDpid is the dpid given to the software switch. It differs from Dpid
	// only when this switch stands in front of the hardware datapath.
	BridgeDpid Dpid

	// Controllerless switches are transparent attachment bridges for hardware
	Controllerless bool

	OvsType string

	// Ports lists every local port in allocation order, host facing ones first
	Ports []int

	PeerLinks []PeerLink
}

// SwitchDesc is the serializable version of a SwitchFrame
type SwitchDesc struct {
	Name           string     `json:"name" yaml:"name"`
	Prefix         string     `json:"prefix" yaml:"prefix"`
	Dpid           string     `json:"dpid" yaml:"dpid"`
	BridgeDpid     string     `json:"bridgedpid" yaml:"bridgedpid"`
	Controllerless bool       `json:"controllerless" yaml:"controllerless"`
	OvsType        string     `json:"ovstype" yaml:"ovstype"`
	Ports          []int      `json:"ports" yaml:"ports"`
	PeerLinks      []PeerLink `json:"peerlinks" yaml:"peerlinks"`
}

// Transform converts a SwitchFrame into a SwitchDesc
func (sf *SwitchFrame) Transform() SwitchDesc {
	sd := SwitchDesc{
		Name:           sf.Name,
		Prefix:         sf.Prefix,
		Dpid:           sf.Dpid.String(),
		BridgeDpid:     sf.BridgeDpid.String(),
		Controllerless: sf.Controllerless,
		OvsType:        sf.OvsType,
		Ports:          make([]int, len(sf.Ports)),
		PeerLinks:      make([]PeerLink, len(sf.PeerLinks)),
	}
	copy(sd.Ports, sf.Ports)
	copy(sd.PeerLinks, sf.PeerLinks)
	return sd
}

// hostLinkDelay is the propagation delay put on every host link
const hostLinkDelay = "1ms"

// LinkFrame describes a cable the emulation framework must create. Node1 is
// always a switch; for host links the host is Node2, because the host may live
// in a container and the framework needs the switch end first.
type LinkFrame struct {
	Node1 string
	Node2 string

	// Port1 and Port2 are port numbers on Node1 and Node2, 0 leaves the choice to the framework
	Port1 int
	Port2 int

	Delay  string
	UseHTB bool
}

// LinkDesc is the serializable version of a LinkFrame
type LinkDesc struct {
	Node1  string `json:"node1" yaml:"node1"`
	Node2  string `json:"node2" yaml:"node2"`
	Port1  int    `json:"port1" yaml:"port1"`
	Port2  int    `json:"port2,omitempty" yaml:"port2,omitempty"`
	Delay  string `json:"delay,omitempty" yaml:"delay,omitempty"`
	UseHTB bool   `json:"usehtb,omitempty" yaml:"usehtb,omitempty"`
}

// Transform converts a LinkFrame into a LinkDesc
func (lf *LinkFrame) Transform() LinkDesc {
	return LinkDesc{
		Node1:  lf.Node1,
		Node2:  lf.Node2,
		Port1:  lf.Port1,
		Port2:  lf.Port2,
		Delay:  lf.Delay,
		UseHTB: lf.UseHTB,
	}
}

// TopoDesc is the serializable description of a whole built topology, with
// everything LoadTopology needs to answer port and peer link queries again
type TopoDesc struct {
	Name                string       `json:"name" yaml:"name"`
	StartPort           int          `json:"startport" yaml:"startport"`
	SwitchToSwitchLinks int          `json:"switchtoswitchlinks" yaml:"switchtoswitchlinks"`
	PortOrder           []int        `json:"portorder" yaml:"portorder"`
	HwDpid              string       `json:"hwdpid,omitempty" yaml:"hwdpid,omitempty"`
	HwPorts             []int        `json:"hwports,omitempty" yaml:"hwports,omitempty"`
	Switches            []SwitchDesc `json:"switches" yaml:"switches"`
	Hosts               []HostDesc   `json:"hosts" yaml:"hosts"`
	Links               []LinkDesc   `json:"links" yaml:"links"`
}

// WriteToFile stores the TopoDesc to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (td *TopoDesc) WriteToFile(filename string) error {
	var bytes []byte
	var err error

	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		bytes, err = yaml.Marshal(*td)
	case ".json":
		bytes, err = json.MarshalIndent(*td, "", "\t")
	default:
		return errors.Errorf("%s: unknown topology file extension", filename)
	}
	if err != nil {
		return errors.Wrapf(err, "serialize topology %s", td.Name)
	}

	return errors.Wrapf(os.WriteFile(filename, bytes, 0644), "write topology %s", filename)
}

// ReadTopoDesc deserializes a byte slice holding a representation of a TopoDesc.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.
func ReadTopoDesc(filename string, useYAML bool, dict []byte) (*TopoDesc, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrap(err, "read topology")
		}
	}

	td := TopoDesc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &td)
	} else {
		err = json.Unmarshal(dict, &td)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse topology %s", filename)
	}

	return &td, nil
}

// useYAMLFor reports whether a file name selects yaml rather than json
func useYAMLFor(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// errList reports several errors as one, comma-separated. errors.Is and
// errors.As see every error of the list.
type errList []error

func (el errList) Error() string {
	errMsg := make([]string, 0, len(el))
	for _, err := range el {
		errMsg = append(errMsg, err.Error())
	}
	return strings.Join(errMsg, ",")
}

func (el errList) Unwrap() []error {
	return el
}

// ReportErrs combines the non-nil errors of a list into a single error
// with a comma-separated report of all of them. nil is returned if there are none,
// and a single error is returned as it is.
func ReportErrs(errs []error) error {
	el := errList{}
	for _, err := range errs {
		if err != nil {
			el = append(el, err)
		}
	}
	switch len(el) {
	case 0:
		return nil
	case 1:
		return el[0]
	}
	return el
}

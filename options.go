package sdntopo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// SwitchStartPort is the first port number a switch gives out unless told otherwise
const SwitchStartPort = 5

// BuildOptions holds everything a test driver can ask of a topology build
type BuildOptions struct {
	// TestName names the requests made to the serial allocator
	TestName string `json:"test_name" yaml:"test_name"`

	// OvsType is the datapath type of the software switches, e.g. "kernel" or "netdev"
	OvsType string `json:"ovs_type" yaml:"ovs_type"`

	// Dpids has one entry per switch, decimal (or 0x hex). The first is the primary test datapath.
	Dpids []string `json:"dpids" yaml:"dpids"`

	NTagged   int `json:"n_tagged" yaml:"n_tagged"`
	TaggedVid int `json:"tagged_vid" yaml:"tagged_vid"`

	NUntagged int `json:"n_untagged" yaml:"n_untagged"`

	// HostNamespace overrides, by host index, whether an untagged host gets its own namespace
	HostNamespace map[int]bool `json:"host_namespace" yaml:"host_namespace"`

	NExtended     int    `json:"n_extended" yaml:"n_extended"`
	ExtendedClass string `json:"extended_class" yaml:"extended_class"`
	TmpDir        string `json:"tmpdir" yaml:"tmpdir"`

	LinksPerHost        int `json:"links_per_host" yaml:"links_per_host"`
	SwitchToSwitchLinks int `json:"switch_to_switch_links" yaml:"switch_to_switch_links"`

	// HwDpid names the datapath that is real hardware, empty if there is none
	HwDpid string `json:"hw_dpid" yaml:"hw_dpid"`

	// SwitchMap maps hardware port numbers to the test interfaces cabled to them
	SwitchMap map[int]string `json:"switch_map" yaml:"switch_map"`

	StackRing bool  `json:"stack_ring" yaml:"stack_ring"`
	StartPort int   `json:"start_port" yaml:"start_port"`
	PortOrder []int `json:"port_order" yaml:"port_order"`
}

// DefaultBuildOptions returns the options used when a test does not say otherwise
func DefaultBuildOptions() *BuildOptions {
	return &BuildOptions{
		OvsType:             "kernel",
		TaggedVid:           100,
		HostNamespace:       map[int]bool{},
		LinksPerHost:        1,
		SwitchToSwitchLinks: 1,
		SwitchMap:           map[int]string{},
		StartPort:           SwitchStartPort,
	}
}

// ReadBuildOptions deserializes a byte slice holding BuildOptions on top of the defaults.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.
func ReadBuildOptions(filename string, useYAML bool, dict []byte) (*BuildOptions, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrap(err, "read build options")
		}
	}

	opts := DefaultBuildOptions()
	if useYAML {
		err = yaml.Unmarshal(dict, opts)
	} else {
		err = json.Unmarshal(dict, opts)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse build options %s", filename)
	}

	return opts, nil
}

// LoadBuildOptions reads build options from a yaml or json file, chosen by extension
func LoadBuildOptions(filename string) (*BuildOptions, error) {
	return ReadBuildOptions(filename, useYAMLFor(filename), nil)
}

// HwPorts returns the hardware port numbers in ascending order
func (bo *BuildOptions) HwPorts() []int {
	ports := make([]int, 0, len(bo.SwitchMap))
	for port := range bo.SwitchMap {
		ports = append(ports, port)
	}
	slices.Sort(ports)
	return ports
}

// hostsPerSwitch is the number of hosts attached to each switch
func (bo *BuildOptions) hostsPerSwitch() int {
	return bo.NTagged + bo.NUntagged + bo.NExtended
}

// parsedDpids parses the switch dpids and the hardware dpid (0 when absent)
func (bo *BuildOptions) parsedDpids() ([]Dpid, Dpid, error) {
	dpids := make([]Dpid, 0, len(bo.Dpids))
	errs := []error{}
	for _, s := range bo.Dpids {
		dpid, err := ParseDpid(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dpids = append(dpids, dpid)
	}

	var hwDpid Dpid
	if bo.HwDpid != "" {
		var err error
		hwDpid, err = ParseDpid(bo.HwDpid)
		errs = append(errs, err)
	}
	if err := ReportErrs(errs); err != nil {
		return nil, 0, err
	}
	return dpids, hwDpid, nil
}

// namedCount is an option count together with its option name, for error messages
type namedCount struct {
	name  string
	count int
}

// Validate checks the options for everything that would make a build fail or
// produce colliding names or ports. All problems found are reported together.
func (bo *BuildOptions) Validate() error {
	errs := []error{}

	if len(bo.Dpids) == 0 {
		errs = append(errs, errors.New("no dpids given"))
	}

	hostCounts := []namedCount{
		{"n_tagged", bo.NTagged},
		{"n_untagged", bo.NUntagged},
		{"n_extended", bo.NExtended},
	}
	linkCounts := []namedCount{
		{"links_per_host", bo.LinksPerHost},
		{"switch_to_switch_links", bo.SwitchToSwitchLinks},
	}
	for _, nc := range append(slices.Clone(hostCounts), linkCounts...) {
		if nc.count < 0 {
			errs = append(errs, fmt.Errorf("%s is negative (%d)", nc.name, nc.count))
		}
	}
	for _, nc := range hostCounts {
		if nc.count > maxHostsPerRole {
			errs = append(errs, fmt.Errorf("%s is %d, host names allow at most %d", nc.name, nc.count, maxHostsPerRole))
		}
	}
	if bo.NTagged > 0 && (bo.TaggedVid < 1 || bo.TaggedVid > 4094) {
		errs = append(errs, fmt.Errorf("tagged_vid %d out of range", bo.TaggedVid))
	}
	if bo.StartPort < 1 {
		errs = append(errs, fmt.Errorf("start_port %d out of range", bo.StartPort))
	}

	dpids, hwDpid, err := bo.parsedDpids()
	if err != nil {
		errs = append(errs, err)
	} else {
		seen := make(map[Dpid]bool, len(dpids))
		for _, dpid := range dpids {
			if seen[dpid] {
				errs = append(errs, fmt.Errorf("dpid %s used more than once", dpid))
			}
			seen[dpid] = true
		}
		if hwDpid != 0 && seen[hwDpid] && seen[hwDpid+1] {
			errs = append(errs, fmt.Errorf("hardware dpid %s is bridged via %s, which is also a switch dpid",
				hwDpid, hwDpid+1))
		}
	}

	return ReportErrs(errs)
}

package sdntopo

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// hostCPU is the cpu share given to tagged and untagged test hosts
const hostCPU = 0.5

// maxHostsPerRole follows from the single digit host index in host names
const maxHostsPerRole = 9

// hostName builds the name of the n-th (0-based) host of a role on the switch owning prefix
func hostName(role HostRole, prefix string, n int) string {
	return fmt.Sprintf("%s%s%d", rolePrefix[role], prefix, n+1)
}

// switchName builds the name of the switch owning prefix
func switchName(prefix string) string {
	return "s" + prefix
}

// CreateTaggedHost is a constructor for a host whose default interface carries VLAN tag vlan
func CreateTaggedHost(prefix string, vlan, n int) *HostFrame {
	return &HostFrame{
		Name:        hostName(TaggedRole, prefix, n),
		Role:        TaggedRole,
		HostN:       n,
		Vlan:        vlan,
		CPU:         hostCPU,
		InNamespace: true,
	}
}

// CreateUntaggedHost is a constructor for an untagged host. A host that is not in
// its own namespace shares the test runner's network stack, e.g. an 802.1X supplicant.
func CreateUntaggedHost(prefix string, n int, inNamespace bool) *HostFrame {
	return &HostFrame{
		Name:        hostName(UntaggedRole, prefix, n),
		Role:        UntaggedRole,
		HostN:       n,
		CPU:         hostCPU,
		InNamespace: inNamespace,
	}
}

// CreateExtendedHost is a constructor for a host whose behaviour comes from a
// caller supplied host class, handed a scratch directory
func CreateExtendedHost(prefix string, n int, class, tmpDir string) *HostFrame {
	return &HostFrame{
		Name:        hostName(ExtendedRole, prefix, n),
		Role:        ExtendedRole,
		HostN:       n,
		InNamespace: true,
		Class:       class,
		TmpDir:      tmpDir,
	}
}

// CreateSwitch is a constructor for the switch owning prefix. When dpid is the
// hardware datapath the software switch only bridges the hardware dataplane:
// it gets no controller of its own and dpid+1, leaving dpid to the hardware.
// hwDpid 0 means there is no hardware datapath.
func CreateSwitch(prefix string, dpid, hwDpid Dpid, ovsType string) *SwitchFrame {
	sf := &SwitchFrame{
		Name:       switchName(prefix),
		Prefix:     prefix,
		Dpid:       dpid,
		BridgeDpid: dpid,
		OvsType:    ovsType,
		Ports:      []int{},
		PeerLinks:  []PeerLink{},
	}
	if hwDpid != 0 && dpid == hwDpid {
		sf.BridgeDpid = dpid + 1
		sf.Controllerless = true
		logger.WithFields(logrus.Fields{
			"switch":      sf.Name,
			"dpid":        dpid.String(),
			"bridge_dpid": sf.BridgeDpid.String(),
		}).Infof("bridging hardware switch DPID %s (%x) dataplane via OVS DPID %s (%x)",
			dpid, uint64(dpid), sf.BridgeDpid, uint64(sf.BridgeDpid))
	}
	return sf
}

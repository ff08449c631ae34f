package sdntopo

import (
	"github.com/pkg/errors"
)

// Fabric is the emulation framework a topology is instantiated in. Its
// primitives create the hosts, switches and cables; how is up to the framework.
type Fabric interface {
	AddHost(host *HostFrame) error
	AddSwitch(sw *SwitchFrame) error
	AddLink(link *LinkFrame) error
}

// Apply creates the topology in the fabric: hosts, then switches, then links,
// each in creation order, so both ends of a link exist when it is added.
// The first error stops the replay.
func (t *Topology) Apply(f Fabric) error {
	for _, host := range t.Hosts {
		if err := f.AddHost(host); err != nil {
			return errors.Wrapf(err, "add host %s", host.Name)
		}
	}
	for _, sw := range t.Switches {
		if err := f.AddSwitch(sw); err != nil {
			return errors.Wrapf(err, "add switch %s", sw.Name)
		}
	}
	for _, link := range t.Links {
		if err := f.AddLink(link); err != nil {
			return errors.Wrapf(err, "add link %s-%s", link.Node1, link.Node2)
		}
	}
	return nil
}

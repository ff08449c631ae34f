package sdntopo

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// counterSerials hands out serials the way the allocator does, starting at 1
type counterSerials struct {
	mu   sync.Mutex
	next uint
	err  error
}

func (c *counterSerials) GetSerial(ctx context.Context, name string) (uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.next++
	return c.next, nil
}

var errAllocatorDown = errors.New("allocator down")

// untaggedChain returns options for a chain of len(dpids) switches with
// nUntagged hosts each
func untaggedChain(nUntagged int, dpids ...string) *BuildOptions {
	opts := DefaultBuildOptions()
	opts.TestName = "test"
	opts.Dpids = dpids
	opts.NUntagged = nUntagged
	return opts
}

// portsByDpid collects the port list of every switch
func portsByDpid(t *Topology) map[Dpid][]int {
	ports := make(map[Dpid][]int, len(t.Switches))
	for _, sw := range t.Switches {
		ports[sw.Dpid] = sw.Ports
	}
	return ports
}

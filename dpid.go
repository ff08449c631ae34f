package sdntopo

import (
	"strconv"
	"strings"

	"github.com/iti/rngstream"
	"github.com/pkg/errors"
)

// Dpid is a datapath identifier, the numeric id of a switch
type Dpid uint64

// ErrInvalidDpid is returned for a datapath id that is neither decimal nor 0x-prefixed hex
var ErrInvalidDpid = errors.New("invalid dpid")

// ParseDpid accepts a decimal datapath id, or a hex one with a 0x prefix
func ParseDpid(s string) (Dpid, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil || v == 0 {
		return 0, errors.Wrapf(ErrInvalidDpid, "%q", s)
	}
	return Dpid(v), nil
}

// String formats the dpid in decimal, the form used in controller configuration
func (d Dpid) String() string {
	return strconv.FormatUint(uint64(d), 10)
}

// Hex formats the dpid as bare lower-case hex, the form the emulation framework expects
func (d Dpid) Hex() string {
	return strconv.FormatUint(uint64(d), 16)
}

// dpidReserved keeps randomly chosen dpids clear of the small, hand-assigned ones
const dpidReserved = 100

// RandDpids returns n distinct datapath ids drawn from a new random stream
// named after the test. Streams are handed out in creation order, so a run that
// creates its streams in the same order draws the same dpids. No id is adjacent
// to another one: a hardware switch is bridged through dpid+1, which must stay free.
func RandDpids(testName string, n int) []Dpid {
	rng := rngstream.New(testName)
	used := make(map[Dpid]bool)
	dpids := make([]Dpid, 0, n)
	for len(dpids) < n {
		dpid := Dpid(rng.RandInt(1, (1<<32)-dpidReserved) + dpidReserved)
		if used[dpid] || used[dpid+1] || used[dpid-1] {
			continue
		}
		used[dpid] = true
		dpids = append(dpids, dpid)
	}
	return dpids
}

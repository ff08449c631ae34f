package sdntopo

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// ExtendPortOrder returns the port order seed extended with the next offsets in
// ascending order so that offsets 0 through maxLength can be looked up. The seed
// is kept as the prefix of the result and is not modified; a seed that is already
// long enough is returned as a copy.
//
// portOrder[i] is the physical offset (from the start port) given to the i-th
// port a switch allocates, which lets a test reorder cabling without touching
// anything else.
func ExtendPortOrder(seed []int, maxLength int) []int {
	order := slices.Clone(seed)
	if order == nil {
		order = []int{}
	}
	for offset := len(seed); offset <= maxLength; offset++ {
		order = append(order, offset)
	}
	return order
}

// ValidatePortOrder checks that a port order can be used as a permutation
// of port offsets: no negative offsets and no offset used twice.
func ValidatePortOrder(order []int) error {
	seen := make(map[int]bool, len(order))
	for idx, offset := range order {
		if offset < 0 {
			return fmt.Errorf("port order entry %d is negative (%d)", idx, offset)
		}
		if seen[offset] {
			return fmt.Errorf("port order offset %d used more than once", offset)
		}
		seen[offset] = true
	}
	return nil
}

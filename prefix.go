package sdntopo

// file prefix.go derives the short per-switch naming token embedded in
// every host, switch and interface name of a switch position

import (
	"github.com/pkg/errors"
)

// sidChars is the sorted set of ASCII digits and letters. Its order fixes the
// mapping from serial number to prefix, so it must never change.
const sidChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// MaxSerial is the number of distinct two character prefixes
const MaxSerial = uint(len(sidChars) * len(sidChars))

// ErrTopologyTooLarge is returned when a serial number has no prefix of its own
var ErrTopologyTooLarge = errors.New("topology too large")

// SidPrefix returns the two character prefix for a serial number handed out by
// the serial allocator. Linux tools require short interface names, so the prefix
// is fixed width; serials past MaxSerial would alias an earlier prefix and are refused.
func SidPrefix(serial uint) (string, error) {
	if serial >= MaxSerial {
		return "", errors.Wrapf(ErrTopologyTooLarge, "serial %d exceeds %d prefixes", serial, MaxSerial)
	}
	base := uint(len(sidChars))
	hi, lo := serial/base, serial%base
	return string([]byte{sidChars[hi], sidChars[lo]}), nil
}

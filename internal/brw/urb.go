package brw

import (
	"fmt"
)

// URBRows is the size of the URB in 512-bit rows.
const URBRows = 256

// URB clients, in fence order.
const (
	urbVS = iota
	urbGS
	urbClip
	urbSF
	urbCS
	numURB
)

var urbNames = [numURB]string{"vs", "gs", "clip", "sf", "cs"}

// urbLimits are per-client entry counts and entry sizes in rows.
var urbLimits = [numURB]struct {
	minEntries, preferredEntries int
	minSize, maxSize             int
}{
	urbVS:   {16, 32, 1, 5},
	urbGS:   {4, 8, 1, 5},
	urbClip: {6, 10, 1, 5},
	urbSF:   {1, 8, 1, 12},
	urbCS:   {1, 4, 1, 32},
}

// URBLayout is the partition of the URB between the fixed-function units
// and the constant buffer.
type URBLayout struct {
	Entries [numURB]int
	Size    [numURB]int
	Start   [numURB]int
	Total   int

	// Constrained is set when the preferred entry counts did not fit.
	Constrained bool
}

// Fence returns the end row of client i, as URB_FENCE encodes it.
func (l URBLayout) Fence(i int) int {
	if i+1 < numURB {
		return l.Start[i+1]
	}
	return URBRows
}

// String returns the per-client allocation.
func (l URBLayout) String() string {
	s := ""
	for i := range numURB {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s:%dx%d@%d", urbNames[i], l.Entries[i], l.Size[i], l.Start[i])
	}
	return s
}

// PartitionURB lays out the URB for the given entry sizes, in rows: vs
// for the VS, GS and CLIP entries, sf for the setup output and cs for one
// constant buffer. It uses the preferred entry counts when they fit and
// the minimum counts otherwise.
func PartitionURB(vs, sf, cs int) (URBLayout, error) {
	var l URBLayout
	sizes := [numURB]int{vs, vs, vs, sf, cs}
	for i, s := range sizes {
		lim := urbLimits[i]
		if s > lim.maxSize {
			return l, fmt.Errorf("%w: %s entry of %d rows exceeds %d", ErrURBLayout, urbNames[i], s, lim.maxSize)
		}
		l.Size[i] = max(s, lim.minSize)
	}

	for i := range numURB {
		l.Entries[i] = urbLimits[i].preferredEntries
	}
	if !l.place() {
		l.Constrained = true
		for i := range numURB {
			l.Entries[i] = urbLimits[i].minEntries
		}
		if !l.place() {
			return l, fmt.Errorf("%w: %d rows needed", ErrURBLayout, l.Total)
		}
	}
	return l, nil
}

func (l *URBLayout) place() bool {
	row := 0
	for i := range numURB {
		l.Start[i] = row
		row += l.Entries[i] * l.Size[i]
	}
	l.Total = row
	return row <= URBRows
}

package jit

import "fmt"

// Tier is a compilation level. Code only moves up.
type Tier uint8

const (
	Tier0 Tier = iota // interpreted
	Tier1             // baseline
	Tier2             // optimizing

	tierCount
)

func (t Tier) String() string {
	switch t {
	case Tier0:
		return "tier0"
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

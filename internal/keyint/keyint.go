// Package keyint computes mini-GOP-aligned keyframe intervals for SVT-AV1.
package keyint

import "math"

// Aligned returns the smallest keyframe interval of at least
// framerate * targetSeconds frames that consists of one startup mini-GOP
// followed by whole regular mini-GOPs. Mini-GOP sizes are powers of two
// derived from the configured sizes.
func Aligned(framerate float64, targetSeconds, startupMGSize, hierarchicalLevels int) int {
	startup := 1 << (startupMGSize - 1)
	regular := 1 << (hierarchicalLevels - 1)

	raw := framerate * float64(targetSeconds)
	remaining := raw - float64(startup)
	if remaining <= 0 {
		return startup
	}
	regularCount := int(math.Ceil(remaining / float64(regular)))
	return startup + regularCount*regular
}

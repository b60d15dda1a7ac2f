package history

// DefaultNearBottomThreshold is the distance from the bottom, in content
// units, under which the viewport counts as near the bottom.
const DefaultNearBottomThreshold = 120

// Viewport describes a scroll container. All values are in the same unit
// (pixels, rows).
type Viewport struct {
	ContentHeight int
	Offset        int
	Visible       int
}

// ComputeScrollOffset returns the offset that keeps the previously visible
// content in place after older content was prepended.
func ComputeScrollOffset(previousContentHeight, newContentHeight, previousOffset int) int {
	return max(0, previousOffset+newContentHeight-previousContentHeight)
}

// DistanceFromBottom returns how far the bottom edge of the viewport is from
// the end of the content.
func DistanceFromBottom(v Viewport) int {
	return max(0, v.ContentHeight-(v.Offset+v.Visible))
}

// NearBottom reports whether the viewport is within threshold of the bottom.
func NearBottom(v Viewport, threshold int) bool {
	return DistanceFromBottom(v) < threshold
}

// ShouldAutoScroll reports whether appending should scroll to the bottom.
// Only the viewport as it was before the append matters.
func ShouldAutoScroll(before Viewport, appended int, threshold int) bool {
	return appended > 0 && NearBottom(before, threshold)
}

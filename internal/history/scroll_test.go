package history

import "testing"

func TestComputeScrollOffset(t *testing.T) {
	tests := []struct {
		name                 string
		prevH, newH, prevOff int
		want                 int
	}{
		{"anchored at top", 1000, 1600, 0, 600},
		{"keeps relative offset", 1000, 1600, 40, 640},
		{"no growth", 800, 800, 25, 25},
		{"shrink floors at zero", 1000, 400, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeScrollOffset(tt.prevH, tt.newH, tt.prevOff); got != tt.want {
				t.Errorf("ComputeScrollOffset(%d, %d, %d) = %d, want %d", tt.prevH, tt.newH, tt.prevOff, got, tt.want)
			}
		})
	}
}

func TestNearBottom(t *testing.T) {
	tests := []struct {
		name string
		v    Viewport
		want bool
	}{
		{"at bottom", Viewport{ContentHeight: 1000, Offset: 600, Visible: 400}, true},
		{"just inside threshold", Viewport{ContentHeight: 1000, Offset: 481, Visible: 400}, true},
		{"exactly threshold", Viewport{ContentHeight: 1000, Offset: 480, Visible: 400}, false},
		{"scrolled up", Viewport{ContentHeight: 1000, Offset: 0, Visible: 400}, false},
		{"content smaller than viewport", Viewport{ContentHeight: 100, Offset: 0, Visible: 400}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NearBottom(tt.v, DefaultNearBottomThreshold); got != tt.want {
				t.Errorf("NearBottom(%+v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestShouldAutoScroll(t *testing.T) {
	bottom := Viewport{ContentHeight: 500, Offset: 100, Visible: 400}
	up := Viewport{ContentHeight: 500, Offset: 0, Visible: 100}

	if !ShouldAutoScroll(bottom, 1, DefaultNearBottomThreshold) {
		t.Error("near bottom before append should auto-scroll")
	}
	if ShouldAutoScroll(up, 1, DefaultNearBottomThreshold) {
		t.Error("scrolled up before append should not auto-scroll")
	}
	if ShouldAutoScroll(bottom, 0, DefaultNearBottomThreshold) {
		t.Error("nothing appended should not auto-scroll")
	}
}

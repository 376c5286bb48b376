package layers

// StopsVisible reports whether stop markers are shown at zoom. Stop markers
// are only drawn from minZoom in, where they no longer overlap.
func StopsVisible(zoom, minZoom int) bool {
	return zoom >= minZoom
}

package stream

import (
	"fmt"
	"strings"
)

// BuildLivePlaylist converts a window snapshot (ordered by sequence
// ascending) into a valid HLS live playlist string. Segment URIs are
// relative to the playlist location. An empty snapshot produces a minimal
// valid playlist with media sequence 0.
func BuildLivePlaylist(segments []Segment, targetDuration int) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	if targetDuration < 1 {
		targetDuration = 1
	}

	if len(segments) == 0 {
		b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDuration))
		b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
		return b.String()
	}

	mediaSequence := segments[0].Sequence

	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDuration))
	b.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n\n", mediaSequence))

	for _, seg := range segments {
		b.WriteString(fmt.Sprintf("#EXTINF:%.1f,\n", seg.Duration))
		b.WriteString(fmt.Sprintf("segments/%d\n", seg.Sequence))
	}

	return b.String()
}

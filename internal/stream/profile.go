package stream

import "strconv"

// Profile describes one delivery variant: container format, codec policy and
// per-sequence container options. Profiles are a fixed set selected by name at
// output creation time.
type Profile struct {
	Name        Variant
	Format      string
	ContentType string
	AudioCodecs []string
	VideoCodecs []string

	// ContainerOptions returns muxer options for the given segment sequence.
	// May be nil when the format needs none.
	ContainerOptions func(sequence int64) map[string]string
}

// profiles is the set of delivery variants this service can serve.
var profiles = map[Variant]Profile{
	"hls": {
		Name:        "hls",
		Format:      "mpegts",
		ContentType: "video/mp2t",
		AudioCodecs: []string{"aac"},
		VideoCodecs: []string{"h264"},
	},
	"fmp4": {
		Name:        "fmp4",
		Format:      "mp4",
		ContentType: "video/mp4",
		AudioCodecs: []string{"aac"},
		VideoCodecs: []string{"h264"},
		ContainerOptions: func(sequence int64) map[string]string {
			return map[string]string{
				"movflags":       "frag_custom+empty_moov+default_base_moof",
				"fragment_index": strconv.FormatInt(sequence, 10),
			}
		},
	},
}

// LookupProfile returns the profile registered under name.
func LookupProfile(name Variant) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

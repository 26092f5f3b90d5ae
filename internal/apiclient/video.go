package apiclient

import "strings"

// durableCDNBase is the canonical asset host. Locations built from the
// primary key here are stable, unlike the ephemeral blob handles the page
// renders.
const durableCDNBase = "https://sns-video-bd.xhscdn.com/"

// codec preference when falling back to stream descriptors.
var codecOrder = []func(Stream) []StreamMeta{
	func(s Stream) []StreamMeta { return s.H264 },
	func(s Stream) []StreamMeta { return s.AV1 },
	func(s Stream) []StreamMeta { return s.H265 },
}

// ResolveVideoURL returns a durable location for the unit's video asset.
// The primary durable key always wins, even when stream descriptors are also
// present: the key yields the unmodified canonical asset while descriptors
// may point at transcoded or watermarked variants. When the key is absent the
// first stream descriptor's absolute location is used; when neither is
// present the result is empty.
func ResolveVideoURL(card NoteCard) string {
	if key := card.Video.Consumer.OriginVideoKey; key != "" {
		return durableCDNBase + strings.TrimPrefix(key, "/")
	}
	for _, pick := range codecOrder {
		for _, meta := range pick(card.Video.Media.Stream) {
			if meta.MasterURL != "" {
				return meta.MasterURL
			}
			if meta.MediaURL != "" {
				return meta.MediaURL
			}
			for _, backup := range meta.BackupURLs {
				if backup != "" {
					return backup
				}
			}
		}
	}
	return ""
}

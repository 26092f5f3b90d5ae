package apiclient

import (
	"encoding/json"
	"net/url"
)

// DetailHint carries session-scoped disambiguation parameters parsed from the
// unit's address. The backend rejects detail requests without them for units
// discovered through search.
type DetailHint struct {
	XsecSource string
	XsecToken  string
}

// HintFromURL extracts the xsec query fragments from a unit address. Missing
// parameters yield zero values; the client substitutes defaults.
func HintFromURL(raw string) DetailHint {
	u, err := url.Parse(raw)
	if err != nil {
		return DetailHint{}
	}
	q := u.Query()
	return DetailHint{
		XsecSource: q.Get("xsec_source"),
		XsecToken:  q.Get("xsec_token"),
	}
}

// feedRequest is the body of the note-detail endpoint.
type feedRequest struct {
	SourceNoteID string    `json:"source_note_id"`
	ImageFormats []string  `json:"image_formats"`
	Extra        feedExtra `json:"extra"`
	XsecSource   string    `json:"xsec_source"`
	XsecToken    string    `json:"xsec_token"`
}

type feedExtra struct {
	NeedBodyTopic int `json:"need_body_topic"`
}

// apiResponse is the platform's common response envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type feedData struct {
	Items []feedItem `json:"items"`
}

type feedItem struct {
	ID       string   `json:"id"`
	NoteCard NoteCard `json:"note_card"`
}

// NoteCard is the structured detail payload for one unit.
type NoteCard struct {
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	Desc      string      `json:"desc"`
	Video     Video       `json:"video"`
	ImageList []ImageItem `json:"image_list"`
}

// Video holds the media descriptors of a video unit.
type Video struct {
	Consumer Consumer `json:"consumer"`
	Media    Media    `json:"media"`
}

// Consumer carries the primary durable asset key. When present it always
// yields the unmodified canonical asset, unlike the stream descriptors which
// may point to transcoded or watermarked variants.
type Consumer struct {
	OriginVideoKey string `json:"origin_video_key"`
}

// Media wraps the per-codec stream descriptor lists.
type Media struct {
	Stream Stream `json:"stream"`
}

// Stream lists descriptors by codec, in the platform's preference order.
type Stream struct {
	H264 []StreamMeta `json:"h264"`
	AV1  []StreamMeta `json:"av1"`
	H265 []StreamMeta `json:"h265"`
}

// StreamMeta describes one playable stream variant.
type StreamMeta struct {
	MasterURL  string   `json:"master_url"`
	MediaURL   string   `json:"media_url"`
	BackupURLs []string `json:"backup_urls"`
}

// ImageItem describes one image of an image unit.
type ImageItem struct {
	URLDefault string `json:"url_default"`
	URLPre     string `json:"url_pre"`
}

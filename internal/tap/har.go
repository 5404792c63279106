package tap

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// ReplayStats summarises a HAR replay.
type ReplayStats struct {
	Entries   int
	Inspected int // JSON responses handed to the network tap
	Pages     int // HTML responses handed to the DOM tap
	Added     int
}

// ReplayHAR feeds the responses recorded in a HAR archive through the
// taps, as if the traffic were happening live. dom may be nil to skip HTML
// responses.
func ReplayHAR(r io.Reader, inspector *Inspector, dom *DOMTap) (ReplayStats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("read har: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return ReplayStats{}, fmt.Errorf("har is not valid json")
	}
	entries := gjson.GetBytes(data, "log.entries")
	if !entries.IsArray() {
		return ReplayStats{}, fmt.Errorf("har has no log.entries")
	}

	var stats ReplayStats
	entries.ForEach(func(_, e gjson.Result) bool {
		stats.Entries++
		url := e.Get("request.url").String()
		content := e.Get("response.content")
		mime := content.Get("mimeType").String()
		text := content.Get("text").String()
		if text == "" {
			return true
		}
		body := []byte(text)
		if content.Get("encoding").String() == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(text)
			if err != nil {
				inspector.logger.Debug("har entry has bad base64", "url", url, "error", err)
				return true
			}
			body = decoded
		}

		switch {
		case inspector.Wants(url, mime):
			stats.Inspected++
			stats.Added += inspector.Inspect(url, mime, body)
		case dom != nil && strings.Contains(strings.ToLower(mime), "html"):
			stats.Pages++
			stats.Added += dom.ScanHTML(string(body), url)
		}
		return true
	})
	return stats, nil
}

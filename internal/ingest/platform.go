package ingest

import (
	"net/url"
	"strings"
)

type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformX         Platform = "x"
	PlatformVimeo     Platform = "vimeo"
	PlatformTwitch    Platform = "twitch"
	// PlatformWeb is any other URL, fetched directly.
	PlatformWeb Platform = "web"
)

var platformHosts = map[string]Platform{
	"youtube.com":   PlatformYouTube,
	"youtu.be":      PlatformYouTube,
	"tiktok.com":    PlatformTikTok,
	"instagram.com": PlatformInstagram,
	"facebook.com":  PlatformFacebook,
	"fb.watch":      PlatformFacebook,
	"twitter.com":   PlatformX,
	"x.com":         PlatformX,
	"vimeo.com":     PlatformVimeo,
	"twitch.tv":     PlatformTwitch,
}

// DetectPlatform classifies a candidate URL by host. Subdomains such as www.,
// m. or vm. match their parent domain.
func DetectPlatform(rawURL string) Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return PlatformWeb
	}
	host := strings.ToLower(u.Hostname())
	for host != "" {
		if p, ok := platformHosts[host]; ok {
			return p
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return PlatformWeb
}

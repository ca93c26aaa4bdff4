// Package normalize provides the canonicalization functions used for
// duplicate matching: URL keys, title cleanup and title search variants.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	youtubeEmbedRx  = regexp.MustCompile(`/embed/([a-zA-Z0-9_-]{11})`)
	youtubeLegacyRx = regexp.MustCompile(`/v/([a-zA-Z0-9_-]{11})`)
	youtubeShortsRx = regexp.MustCompile(`/shorts/([a-zA-Z0-9_-]{11})`)
	youtubeLiveRx   = regexp.MustCompile(`/live/([a-zA-Z0-9_-]{11})`)
	youtubeChanRx   = regexp.MustCompile(`/channel/([a-zA-Z0-9_-]+)`)
)

// URLKey returns the canonical matching key for a URL. Two URLs are
// considered the same resource iff their keys are byte-equal.
//
// The key is lowercase, has no scheme, no leading www., no query string,
// no fragment and no trailing slash. YouTube URLs in any of their common
// forms collapse to a single canonical key per video, playlist or channel.
func URLKey(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}

	u, err := url.Parse(ensureScheme(raw))
	if err != nil {
		// Unparseable input still gets a stable key
		return raw
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	if host == "" {
		return strings.TrimSuffix(raw, "/")
	}

	if isYouTubeHost(host) {
		return youtubeKey(u, host)
	}

	return host + strings.TrimSuffix(u.Path, "/")
}

// URLExact reports whether two URLs normalize to the same non-empty key.
func URLExact(a, b string) bool {
	ka, kb := URLKey(a), URLKey(b)
	return ka != "" && ka == kb
}

func ensureScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "http://" + raw
}

func isYouTubeHost(host string) bool {
	return host == "youtube.com" || host == "m.youtube.com" || host == "youtu.be"
}

// youtubeKey rewrites YouTube URLs to canonical forms:
// videos to youtube.com/watch?v=<id>, playlists to
// youtube.com/playlist?list=<id>, channels to their stable path.
func youtubeKey(u *url.URL, host string) string {
	path := u.Path
	query := u.Query()

	if id := youtubeVideoID(u, host); id != "" {
		return "youtube.com/watch?v=" + id
	}

	if strings.Contains(path, "/playlist") {
		if list := query.Get("list"); list != "" {
			return "youtube.com/playlist?list=" + list
		}
	}

	if strings.HasPrefix(path, "/@") {
		handle := strings.SplitN(path[2:], "/", 2)[0]
		return "youtube.com/@" + handle
	}
	if m := youtubeChanRx.FindStringSubmatch(path); m != nil {
		return "youtube.com/channel/" + m[1]
	}
	for _, prefix := range []string{"/c/", "/user/"} {
		if strings.HasPrefix(path, prefix) {
			name := strings.SplitN(path[len(prefix):], "/", 2)[0]
			if name != "" {
				return "youtube.com" + prefix + name
			}
		}
	}

	return "youtube.com" + strings.TrimSuffix(path, "/")
}

// youtubeVideoID extracts the 11-character video id from any known video
// URL form, or returns "".
func youtubeVideoID(u *url.URL, host string) string {
	path := u.Path

	if host == "youtu.be" {
		id := strings.SplitN(strings.Trim(path, "/"), "/", 2)[0]
		if len(id) == 11 {
			return id
		}
		return ""
	}

	if strings.Contains(path, "/watch") {
		if id := u.Query().Get("v"); len(id) == 11 {
			return id
		}
	}
	for _, rx := range []*regexp.Regexp{youtubeEmbedRx, youtubeLegacyRx, youtubeShortsRx, youtubeLiveRx} {
		if m := rx.FindStringSubmatch(path); m != nil {
			return m[1]
		}
	}
	return ""
}

// URLSearchVariants generates the spellings of a URL worth searching for
// upstream, since the repository stores URLs inconsistently. For regular
// URLs this is the protocol x www x trailing-slash matrix plus the bare
// host+path form; YouTube URLs expand to every common video URL format
// plus the bare video id.
func URLSearchVariants(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var variants []string
	seen := make(map[string]bool)
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	add(raw)

	// Hosts are case-insensitive; paths and YouTube ids are not, so
	// only the host is folded.
	u, err := url.Parse(ensureScheme(raw))
	if err != nil {
		return variants
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return variants
	}
	bareHost := strings.TrimPrefix(host, "www.")

	if isYouTubeHost(bareHost) {
		if id := youtubeVideoID(u, bareHost); id != "" {
			add("https://www.youtube.com/watch?v=" + id)
			add("https://youtube.com/watch?v=" + id)
			add("http://www.youtube.com/watch?v=" + id)
			add("https://youtu.be/" + id)
			add("http://youtu.be/" + id)
			add("https://www.youtube.com/embed/" + id)
			add("https://www.youtube.com/v/" + id)
			add("https://www.youtube.com/shorts/" + id)
			add("https://www.youtube.com/live/" + id)
			add("https://m.youtube.com/watch?v=" + id)
			add(id)
		}
		if list := u.Query().Get("list"); list != "" {
			add("https://www.youtube.com/playlist?list=" + list)
			add("https://youtube.com/playlist?list=" + list)
			add(list)
		}
		return variants
	}

	path := strings.TrimSuffix(u.Path, "/")

	for _, scheme := range []string{"https://", "http://"} {
		for _, h := range []string{bareHost, "www." + bareHost} {
			add(scheme + h + path)
			add(scheme + h + path + "/")
		}
	}
	add(bareHost + path)

	return variants
}

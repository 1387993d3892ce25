package useragent

import "strings"

// Parse extracts coarse OS and browser names from a User-Agent header.
// Session metadata only needs family-level identification, so matching
// is substring-based; unrecognized agents come back as "unknown".
func Parse(ua string) (os string, browser string) {
	return parseOS(ua), parseBrowser(ua)
}

func parseOS(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return "iOS"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		return "macOS"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return "unknown"
	}
}

func parseBrowser(ua string) string {
	// Order matters: Chrome ships "Safari" in its UA, Edge ships both.
	switch {
	case strings.Contains(ua, "Edg/"), strings.Contains(ua, "Edge/"):
		return "Edge"
	case strings.Contains(ua, "OPR/"), strings.Contains(ua, "Opera"):
		return "Opera"
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Chrome/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	default:
		return "unknown"
	}
}

package portal

import (
	"net/url"
	"strings"
)

// AppendDiscordID builds the destination the continue action navigates to:
// the target URL with discord_id=<value> appended. The separator is & when
// the target already carries a query string, otherwise ?. An empty target
// degrades to a query-only relative link; the redirect still proceeds.
//
// The same rule runs client-side in static/portal.js; both sides must agree
// on the encoding: space is %20, never +. QueryEscape also percent-encodes a
// few marks encodeURIComponent leaves bare (!'()*), which decode the same.
func AppendDiscordID(target, value string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + "discord_id=" + encodeComponent(value)
}

func encodeComponent(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

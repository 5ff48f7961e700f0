// ABOUTME: Converts mxc:// content URIs into HTTP download URLs.
// ABOUTME: SMS providers fetch attachments over plain HTTPS.

package matrix

import (
	"net/url"
	"strings"
)

// DownloadURL maps mxc://server/mediaID to the homeserver's media download
// endpoint. Non-mxc URIs are returned unchanged; malformed ones yield "".
func DownloadURL(homeserver, uri string) string {
	rest, ok := strings.CutPrefix(uri, "mxc://")
	if !ok {
		return uri
	}
	server, mediaID, ok := strings.Cut(rest, "/")
	if !ok || server == "" || mediaID == "" || strings.Contains(mediaID, "/") {
		return ""
	}
	return strings.TrimRight(homeserver, "/") + "/_matrix/media/v3/download/" +
		url.PathEscape(server) + "/" + url.PathEscape(mediaID)
}

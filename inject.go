package liveserver

import (
	"bytes"
	"fmt"
)

// marker identifies bodies that already carry the client script
const marker = "<!-- Code injected by liveserver -->"

// Client-side script that we attach before the end of the body. It connects
// back to the reload endpoint and reacts to the signals the server sends.
const liveScript = marker + `
<script type="text/javascript">
(function() {
	if (!("WebSocket" in window)) {
		console.warn("liveserver: browser doesn't support websockets, live reload disabled")
		return
	}
	const protocol = window.location.protocol === "https:" ? "wss://" : "ws://"
	const url = protocol + window.location.host + %[1]q
	function refreshCSS() {
		const sheets = document.querySelectorAll("link[rel='stylesheet']")
		const head = document.head || document.getElementsByTagName("head")[0]
		for (let i = 0; i < sheets.length; i++) {
			const elem = sheets[i]
			const href = elem.getAttribute("href")
			if (!href) continue
			const clean = href.replace(/(&|\?)_cacheOverride=\d+/, "")
			elem.href = clean + (clean.indexOf("?") >= 0 ? "&" : "?") + "_cacheOverride=" + Date.now()
			head.appendChild(head.removeChild(elem))
		}
	}
	const socket = new WebSocket(url)
	socket.addEventListener("open", function() {
		console.debug("liveserver: connected to", url)
	})
	socket.addEventListener("message", function(e) {
		if (e.data === "refreshcss") {
			console.debug("liveserver: refreshing stylesheets")
			refreshCSS()
			return
		}
		console.debug("liveserver: reloading")
		window.location.reload()
	})
	window.addEventListener("beforeunload", function() {
		socket.close()
	})
})()
</script>
`

// Script returns the client snippet connecting to the given reload path
func Script(reloadPath string) []byte {
	return []byte(fmt.Sprintf(liveScript, reloadPath))
}

// Inject the client script into an HTML document immediately before the last
// closing body tag, or at the end of the document when there is none. The
// rest of the document is left byte for byte. Documents that already carry
// the script are returned as-is with false.
func Inject(data []byte, reloadPath string) ([]byte, bool) {
	if bytes.Contains(data, []byte(marker)) {
		return data, false
	}
	script := Script(reloadPath)
	index := lastIndexFold(data, closingBody)
	if index < 0 {
		index = len(data)
	}
	out := make([]byte, 0, len(data)+len(script))
	out = append(out, data[:index]...)
	out = append(out, script...)
	out = append(out, data[index:]...)
	return out, true
}

var closingBody = []byte("</body>")

// lastIndexFold is bytes.LastIndex ignoring ASCII case. bytes.ToLower would
// shift offsets on some multi-byte runes.
func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}

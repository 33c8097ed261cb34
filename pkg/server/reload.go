package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/slotweave/pkg/log"
)

const (
	reloadPath   = "/_reload"
	reloadMarker = "__slotweave_reload"
	writeWait    = 5 * time.Second
	pingPeriod   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 1024,
}

// reloadScript reconnects after a server restart and reloads the page once
// the socket is back.
const reloadScript = `<script id="` + reloadMarker + `">
(function () {
  var url = (location.protocol === "https:" ? "wss://" : "ws://") + location.host + "` + reloadPath + `";
  var wasClosed = false;
  function refreshCSS() {
    var now = Date.now();
    document.querySelectorAll('link[rel="stylesheet"]').forEach(function (link) {
      var u = new URL(link.href);
      u.searchParams.set("v", now);
      link.href = u.toString();
    });
  }
  function connect() {
    var ws = new WebSocket(url);
    ws.onopen = function () { if (wasClosed) { location.reload(); } };
    ws.onmessage = function (msg) {
      var ev = JSON.parse(msg.data);
      if (ev.kind === "css") { refreshCSS(); } else { location.reload(); }
    };
    ws.onclose = function () { wasClosed = true; setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

// appendReloadScript injects the reload client before </body>, or at the
// end when the page has no body tag.
func appendReloadScript(html string) string {
	if strings.Contains(html, reloadMarker) {
		return html
	}
	if i := strings.LastIndex(html, "</body>"); i >= 0 {
		return html[:i] + reloadScript + html[i:]
	}
	return html + reloadScript
}

// serveReload streams hub events to a browser over a WebSocket until either
// side goes away.
func (s *Server) serveReload(w http.ResponseWriter, r *http.Request) {
	logger := log.ForRequest(r.Context(), "server")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("reload socket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, events := s.hub.Register()
	defer s.hub.Unregister(id)
	logger.Debugf("reload listener %d connected (%d total)", id, s.hub.Size())

	// the client never sends anything; reading only notices the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			logger.Debugf("reload listener %d disconnected", id)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debugf("reload listener %d: %v", id, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sos-trigger/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"rfc3339": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>SOS Trigger</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.armed { color: red; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
button { font-family: monospace; font-size: 1.1em; padding: 6px 14px; }
</style>
</head>
<body>
<h1>SOS Trigger</h1>

<h2>Session</h2>
<table>
<tr><th>State</th><td id="session-state" class="{{if .Session.Active}}armed{{else}}idle{{end}}">{{if .Session.Active}}ARMED{{else}}IDLE{{end}}</td></tr>
<tr><th>Seconds remaining</th><td id="session-remaining">{{if .Session.Active}}{{.Session.SecondsRemaining}}{{else}}-{{end}}</td></tr>
<tr><th>Level</th><td id="session-level">{{if .Session.Active}}{{.Session.Level}}{{else}}-{{end}}</td></tr>
<tr><th>Source</th><td id="session-source">{{if .Session.Active}}{{.Session.Source}}{{else}}-{{end}}</td></tr>
</table>
{{if .CanCancel}}<form id="cancel-form" method="post" action="/cancel"><button type="submit">Cancel session</button></form>{{end}}

{{with .LastOutcome}}
<h2>Last Outcome</h2>
<table>
<tr><th>Status</th><td>{{.Status}}</td></tr>
<tr><th>Level</th><td>{{.Level}}</td></tr>
<tr><th>Reason</th><td>{{.Reason}}</td></tr>
<tr><th>Ended</th><td>{{rfc3339 .EndedAt}}</td></tr>
</table>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Fake calls</th><td>{{.Counts.FakeCalls}}</td></tr>
<tr><th>Sessions</th><td>{{.Counts.Sessions}}</td></tr>
<tr><th>Escalations</th><td>{{.Counts.Escalations}}</td></tr>
<tr><th>Fired</th><td>{{.Counts.Fired}}</td></tr>
<tr><th>Cancelled</th><td>{{.Counts.Cancelled}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Countdown</th><td>{{.Config.CountdownSeconds}} ticks of {{.Config.TickMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Inputs</th><td>{{range $i, $in := .Config.Inputs}}{{if $i}}, {{end}}{{$in}}{{end}}</td></tr>
<tr><th>Gestures</th><td>{{range $i, $g := .Config.Gestures}}{{if $i}}, {{end}}{{$g}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/incidents.json">Incidents</a></p>
<script>
(function() {
  var state = document.getElementById("session-state");
  var remaining = document.getElementById("session-remaining");
  var level = document.getElementById("session-level");
  var source = document.getElementById("session-source");

  function render(st) {
    var s = st.session;
    state.textContent = st.armed ? "ARMED" : "IDLE";
    state.className = st.armed ? "armed" : "idle";
    remaining.textContent = s ? s.seconds_remaining : "-";
    level.textContent = s ? s.level : "-";
    source.textContent = s ? s.source : "-";
  }

  function poll() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(j) {
      render(j.status);
    }).catch(function() {});
  }

  var form = document.getElementById("cancel-form");
  if (form) {
    form.addEventListener("submit", function(e) {
      e.preventDefault();
      fetch("/cancel", { method: "POST", body: new URLSearchParams({ reason: "web" }) }).then(poll);
    });
  }
  setInterval(poll, 1000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, canCancel bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime    time.Duration
		CanCancel bool
	}{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		CanCancel: canCancel,
	}
	return indexTmpl.Execute(w, data)
}

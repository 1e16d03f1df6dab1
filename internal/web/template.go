package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/blinkenbox/internal/status"
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
	"orNone": func(s string) string {
		if s == "" {
			return "none"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Blinkenbox</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.high { color: green; font-weight: bold; }
.low { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Blinkenbox</h1>

<h2>Outputs</h2>
<table>
<tr><th>Pin</th><td>Level</td><td>Toggles</td></tr>
{{range .Outputs}}<tr><th>{{.Pin}}</th><td class="{{if eq .Level.String "HIGH"}}high{{else}}low{{end}}">{{.Level}}</td><td>{{.Toggles}}</td></tr>
{{end}}</table>

<h2>Pipeline</h2>
<table>
<tr><th>Last event</th><td>{{orNone .LastEvent}}</td></tr>
<tr><th>Interrupts</th><td>{{.Counts.Interrupts}}</td></tr>
<tr><th>Enqueued</th><td>{{.Counts.Enqueued}}</td></tr>
<tr><th>Dropped</th><td>{{.Counts.Dropped}}</td></tr>
<tr><th>Received</th><td>{{.Counts.Received}}</td></tr>
<tr><th>Toggles</th><td>{{.Counts.Toggles}}</td></tr>
<tr><th>Unresolved</th><td>{{.Counts.Unresolved}}</td></tr>
<tr><th>Receive errors</th><td>{{.Counts.ReceiveErrors}}</td></tr>
</table>

{{if .Config.Broker}}<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>
{{end}}
<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Chip</th><td>{{.Config.Chip}}</td></tr>
<tr><th>Inputs</th><td>{{.Config.Inputs}}</td></tr>
<tr><th>Routes</th><td>{{.Config.Routes}}</td></tr>
<tr><th>Capacity</th><td>{{.Config.Capacity}}</td></tr>
<tr><th>Timestamps</th><td>{{if .Config.Timestamps}}on{{else}}off{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}

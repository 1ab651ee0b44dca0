package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sk-sensor/internal/status"
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
	"age": func(now, at time.Time) string {
		return now.Sub(at).Truncate(100 * time.Millisecond).String()
	},
	"link": func(connected bool) string {
		if connected {
			return "connected"
		}
		return "disconnected"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>SK Sensor</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.stale { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>SK Sensor</h1>

<h2>Outputs</h2>
<table>
<tr><th>Path</th><th>Value</th><th>Units</th><th>Age</th></tr>
{{range .Readings}}<tr title="{{.Meta.Description}}"><td>{{if .Meta.Title}}{{.Meta.Title}}<br>{{end}}<code>{{.Meta.Path}}</code></td>
{{if .Updates}}<td>{{.Value}}</td><td>{{.Meta.Units}}</td><td>{{age $.Now .At}}</td>{{else}}<td class="stale">-</td><td>{{.Meta.Units}}</td><td class="stale">never</td>{{end}}</tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{link .MQTTConnected}}">{{link .MQTTConnected}}</td><td>{{.Config.Broker}}</td></tr>
<tr><th>Signal K</th><td class="{{link .SignalKConnected}}">{{link .SignalKConnected}}</td><td>{{.Config.SignalK}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Tasks</th><td>{{.Loop.Tasks}}</td></tr>
<tr><th>Recovered panics</th><td>{{.Loop.Panics}} task, {{.Loop.SubscriberPanics}} subscriber</td></tr>
<tr><th>Publish failures</th><td>{{.Loop.PublishFailures}} ({{.Loop.PublishDrops}} dropped)</td></tr>
<tr><th>Collapsed events</th><td>{{.Loop.CollapsedEvents}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
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

package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sweeney/thermo-dash/internal/logic"
	"github.com/sweeney/thermo-dash/internal/status"
)

// Chart geometry in SVG user units.
const (
	chartWidth  = 560
	chartHeight = 200
	chartPad    = 10
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
	"temp": func(v *float64) string {
		if v == nil {
			return "--"
		}
		return fmt.Sprintf("%.2f°C", *v)
	},
	"lower": func(v interface{}) string { return strings.ToLower(fmt.Sprint(v)) },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Thermo Dashboard</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.connecting { color: orange; }
.disconnected { color: red; }
.alarming { color: red; font-weight: bold; }
.silent { color: #888; }
#readout { font-size: 2em; }
svg { border: 1px solid #ddd; width: 100%; height: auto; }
.temp { fill: none; stroke: #c33; stroke-width: 2; }
.thr { fill: none; stroke: #36c; stroke-width: 1; stroke-dasharray: 4 3; }
form { display: inline-block; margin: 0.2em 0.5em 0.2em 0; }
#toasts div { padding: 2px 6px; margin: 2px 0; }
#toasts .warning { background: #fe9; }
#toasts .error { background: #fbb; }
#toasts .info { background: #eef; }
</style>
</head>
<body>
<h1>Thermo Dashboard</h1>

<div id="readout">{{temp .Current}}</div>

<svg id="chart" viewBox="0 0 {{.Width}} {{.Height}}">
<polyline id="thr-line" class="thr" points="{{.ThresholdPoints}}"/>
<polyline id="temp-line" class="temp" points="{{.TempPoints}}"/>
</svg>

<h2>State</h2>
<table>
<tr><th>Device</th><td id="conn" class="{{lower .Connection}}">{{.Connection}}</td></tr>
<tr><th>Address</th><td id="addr">{{.Address}}</td></tr>
<tr><th>Alarm</th><td id="alert" class="{{lower .Alert}}">{{.Alert}}</td></tr>
<tr><th>Recording</th><td id="recording">{{if .Recording}}yes{{else}}no{{end}}</td></tr>
<tr><th>Threshold</th><td id="threshold">{{printf "%.2f" .Threshold}}°C</td></tr>
<tr><th>Recorded samples</th><td id="export-len">{{.ExportLen}}</td></tr>
<tr><th>Malformed frames</th><td id="malformed">{{.Malformed}}</td></tr>
</table>

<h2>Controls</h2>
<form data-api="/api/threshold"><input name="threshold" size="6" value="{{printf "%.2f" .Threshold}}"><button>Set threshold</button></form>
<form data-api="/api/recording"><button>Start/stop recording</button></form>
<form data-api="/api/clear"><button>Clear</button></form>
<a href="/export.csv">Export CSV</a>
<br>
<form data-api="/api/connect"><input name="address" size="15" value="{{.Address}}"><button>Connect</button></form>
<form data-api="/api/disconnect"><button>Disconnect</button></form>
<form data-api="/api/command"><select name="command">
<option>test</option><option>start_record</option><option>end_record</option><option>get_record</option>
</select><button>Send</button></form>
{{if .DeviceRecord}}<p>Device record: {{len .DeviceRecord}} values</p>{{end}}

<h2>Notifications</h2>
<div id="toasts">{{range .Notifications}}<div class="{{.Level}}">{{.Time.UTC.Format "15:04:05"}} {{.Message}}</div>{{end}}</div>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Storage</th><td>{{.Config.StorageDriver}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/api/chemicals">Chemicals</a></p>

<script>
(function() {
  var W = {{.Width}}, H = {{.Height}}, P = {{.Pad}};

  function points(win, key, lo, hi) {
    if (win.length === 0) return "";
    var step = win.length > 1 ? (W - 2 * P) / (win.length - 1) : 0;
    return win.map(function(s, i) {
      var y = H - P - (s[key] - lo) / (hi - lo) * (H - 2 * P);
      return (P + i * step).toFixed(1) + "," + y.toFixed(1);
    }).join(" ");
  }

  function render(st) {
    var win = st.window || [];
    var lo = Infinity, hi = -Infinity;
    win.forEach(function(s) {
      lo = Math.min(lo, s.temperature, s.threshold);
      hi = Math.max(hi, s.temperature, s.threshold);
    });
    if (hi - lo < 1) { lo -= 0.5; hi += 0.5; }
    document.getElementById("temp-line").setAttribute("points", points(win, "temperature", lo, hi));
    document.getElementById("thr-line").setAttribute("points", points(win, "threshold", lo, hi));
    document.getElementById("readout").textContent = st.current == null ? "--" : st.current.toFixed(2) + "°C";
    var conn = document.getElementById("conn");
    conn.textContent = st.connection; conn.className = st.connection.toLowerCase();
    var al = document.getElementById("alert");
    al.textContent = st.alert; al.className = st.alert.toLowerCase();
    document.getElementById("addr").textContent = st.device;
    document.getElementById("recording").textContent = st.recording ? "yes" : "no";
    document.getElementById("threshold").textContent = st.threshold.toFixed(2) + "°C";
    document.getElementById("export-len").textContent = st.export_len;
    document.getElementById("malformed").textContent = st.malformed_frames;
    var toasts = document.getElementById("toasts");
    toasts.innerHTML = "";
    (st.notifications || []).forEach(function(n) {
      var d = document.createElement("div");
      d.className = n.level;
      d.textContent = n.time.substr(11, 8) + " " + n.message;
      toasts.appendChild(d);
    });
  }

  function poll() {
    fetch("/index.json").then(function(r) { return r.json(); })
      .then(function(j) { render(j.status); })
      .catch(function() {});
  }

  document.querySelectorAll("form[data-api]").forEach(function(f) {
    f.addEventListener("submit", function(e) {
      e.preventDefault();
      fetch(f.dataset.api, { method: "POST", body: new URLSearchParams(new FormData(f)) })
        .then(function(r) { return r.json(); })
        .then(function(j) { if (j.error) alert(j.error); poll(); });
    });
  });

  setInterval(poll, 1000);
})();
</script>
</body>
</html>
`

type pageData struct {
	status.Snapshot
	Uptime          time.Duration
	Width, Height   int
	Pad             int
	TempPoints      string
	ThresholdPoints string
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	temp, thr := chartPoints(snap.Window)
	data := pageData{
		Snapshot:        snap,
		Uptime:          snap.Uptime(),
		Width:           chartWidth,
		Height:          chartHeight,
		Pad:             chartPad,
		TempPoints:      temp,
		ThresholdPoints: thr,
	}
	return indexTmpl.Execute(w, data)
}

// chartPoints scales both series into the chart box on a shared y axis.
func chartPoints(win []logic.Sample) (temp, threshold string) {
	if len(win) == 0 {
		return "", ""
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range win {
		lo = math.Min(lo, math.Min(s.Temperature, s.Threshold))
		hi = math.Max(hi, math.Max(s.Temperature, s.Threshold))
	}
	if hi-lo < 1 {
		lo -= 0.5
		hi += 0.5
	}

	step := 0.0
	if len(win) > 1 {
		step = float64(chartWidth-2*chartPad) / float64(len(win)-1)
	}
	y := func(v float64) float64 {
		return chartHeight - chartPad - (v-lo)/(hi-lo)*(chartHeight-2*chartPad)
	}

	var tb, hb strings.Builder
	for i, s := range win {
		x := chartPad + float64(i)*step
		if i > 0 {
			tb.WriteByte(' ')
			hb.WriteByte(' ')
		}
		fmt.Fprintf(&tb, "%.1f,%.1f", x, y(s.Temperature))
		fmt.Fprintf(&hb, "%.1f,%.1f", x, y(s.Threshold))
	}
	return tb.String(), hb.String()
}

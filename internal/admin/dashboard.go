package admin

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Blacklist Manager</title>
<style>
body { font-family: sans-serif; margin: 20px; }
.container { max-width: 800px; margin: 0 auto; }
.card { background: #f5f5f5; padding: 20px; margin: 10px 0; border-radius: 5px; }
.logs { background: #1e1e1e; color: #fff; padding: 20px; font-family: monospace; white-space: pre-wrap; max-height: 300px; overflow-y: auto; }
</style>
</head>
<body>
<div class="container">
<h1>Blacklist Manager</h1>
<div class="card">
<h2>Mode</h2>
<p>Blocking is <strong>{{if .Enabled}}enabled{{else}}disabled{{end}}</strong>.
<button onclick="post('/mode', 'enabled={{if .Enabled}}false{{else}}true{{end}}')">{{if .Enabled}}Disable{{else}}Enable{{end}}</button></p>
</div>
<div class="card">
<h2>Blacklist</h2>
<form id="add">
<input type="text" name="entry" placeholder="Add to blacklist..." required>
<button type="submit">Add</button>
</form>
<ul>
{{range .Entries}}<li>{{.}} <button data-entry="{{.}}" onclick="post('/remove_blacklist', 'entry=' + encodeURIComponent(this.dataset.entry))">Remove</button></li>
{{end}}</ul>
</div>
<div class="card">
<h2>Logs</h2>
<button onclick="refreshLogs()">Refresh Logs</button>
<div id="logs" class="logs">Loading logs...</div>
</div>
</div>
<script>
function post(path, body) {
	fetch(path, {method: "POST", headers: {"Content-Type": "application/x-www-form-urlencoded"}, body: body})
		.then(r => r.json())
		.then(d => { if (d.success) location.reload(); });
}
function refreshLogs() {
	fetch("/logs").then(r => r.text()).then(t => { document.getElementById("logs").textContent = t; });
}
document.getElementById("add").onsubmit = function(e) {
	e.preventDefault();
	post("/add_blacklist", "entry=" + encodeURIComponent(e.target.entry.value));
};
refreshLogs();
setInterval(refreshLogs, 5000);
</script>
</body>
</html>
`))

func (a *api) dashboard(rw http.ResponseWriter, _ *http.Request) {
	data := BlacklistResponse{
		Enabled: a.policy.Enabled(),
		Entries: a.policy.Entries(),
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(rw, data); err != nil {
		a.logger.Warn("rendering dashboard failed", zap.Error(err))
	}
}

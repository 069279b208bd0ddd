package web

import (
	"net/http"
	"strings"

	"document-chat/internal/parser"
)

const indexPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Document chat</title>
<style>
body { font-family: sans-serif; display: flex; margin: 0; height: 100vh; }
aside { width: 260px; padding: 1rem; background: #f3f3f3; }
main { flex: 1; display: flex; flex-direction: column; padding: 1rem; }
#log { flex: 1; overflow-y: auto; }
.user { font-weight: bold; margin-top: 1rem; }
</style>
</head>
<body>
<aside>
  <h3>Documents</h3>
  <input type="file" id="files" multiple accept="{{accept}}">
  <button onclick="upload()">Upload</button>
  <pre id="report"></pre>
  <h3>Model</h3>
  <select id="model"></select>
</aside>
<main>
  <div id="log"></div>
  <form onsubmit="ask(event)"><input id="q" size="80" autocomplete="off"><button>Send</button></form>
</main>
<script>
const log = document.getElementById("log");
fetch("/api/models").then(r => r.json()).then(res => {
  const sel = document.getElementById("model");
  for (const m of res.data.models) {
    const o = document.createElement("option");
    o.value = o.textContent = m;
    o.selected = m === res.data.selected;
    sel.appendChild(o);
  }
});
async function upload() {
  const form = new FormData();
  for (const f of document.getElementById("files").files) form.append("files", f);
  const res = await (await fetch("/api/documents", {method: "POST", body: form})).json();
  document.getElementById("report").textContent = JSON.stringify(res.data || res.message, null, 1);
}
async function ask(e) {
  e.preventDefault();
  const q = document.getElementById("q");
  const div = document.createElement("div");
  div.className = "user";
  div.textContent = q.value;
  log.appendChild(div);
  const res = await (await fetch("/api/ask", {method: "POST", headers: {"Content-Type": "application/json"},
    body: JSON.stringify({model: document.getElementById("model").value, question: q.value})})).json();
  const out = document.createElement("div");
  if (res.status) { out.innerHTML = res.data.html; } else { out.textContent = res.message; }
  log.appendChild(out);
  q.value = "";
}
</script>
</body>
</html>
`

// renderedPage limits the file picker to the formats the parser reads
var renderedPage = strings.Replace(indexPage, "{{accept}}", strings.Join(parser.SupportedExtensions(), ","), 1)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(renderedPage))
}

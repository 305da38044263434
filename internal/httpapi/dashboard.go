package httpapi

import (
	"html/template"
	"net/http"

	"github.com/product-estimator/estimator/internal/view"
)

const pageHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Product Estimator</title>
  <style>
    :root {
      --ink: #1d2527;
      --paper: #f7f5f0;
      --card: #ffffff;
      --line: #d9d3c4;
      --accent: #2f7d6d;
      --warn: #c98a2b;
      --danger: #b5443b;
      --muted: #6d7676;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background: var(--paper);
      padding: 20px;
    }
    .shell { max-width: 960px; margin: 0 auto; display: grid; gap: 14px; }
    .bar, .estimate, .pe-dialog {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 12px;
      padding: 14px;
    }
    .estimate header, .room header { display: flex; gap: 10px; align-items: baseline; cursor: pointer; }
    .room { border-top: 1px solid var(--line); padding: 8px 0 8px 12px; }
    .totals { margin-left: auto; font-variant-numeric: tabular-nums; }
    .muted, .room-count, .room-dimensions { color: var(--muted); }
    .product.primary > .product-name { font-weight: 600; }
    .pe-dialog-warning { border-color: var(--warn); }
    .pe-dialog-error, .pe-dialog-delete { border-color: var(--danger); }
    #loading { display: none; color: var(--accent); }
    #loading.visible { display: inline; }
  </style>
</head>
<body>
  <main class="shell">
    <section class="bar">
      <h1>{{.Title}}</h1>
      <form id="new-estimate">
        <input name="estimate_name" placeholder="Estimate name" required />
        <button type="submit">Add estimate</button>
        <span id="loading">Loading…</span>
      </form>
    </section>
    <div id="dialog"></div>
    <div data-region="{{.Root}}">{{.Estimates}}</div>
  </main>
  <script>
    (() => {
      const regionEl = (id) => document.querySelector('[data-region="' + CSS.escape(id) + '"]');
      const dialog = document.getElementById("dialog");

      function apply(updates) {
        for (const u of updates || []) {
          const el = regionEl(u.region);
          if (!el) continue;
          el.innerHTML = u.removed ? "" : u.html;
        }
      }

      function showDecision(d) {
        if (!d || d.outcome === "none") { dialog.innerHTML = ""; return; }
        const box = document.createElement("div");
        box.className = (d.style && d.style.dialog_class) || "pe-dialog";
        const title = document.createElement("strong");
        title.textContent = d.title || "";
        const msg = document.createElement("p");
        msg.textContent = d.message || (d.fields || []).map((f) => f.message).join(", ");
        box.append(title, msg);
        dialog.replaceChildren(box);
      }

      async function call(method, path, body) {
        const res = await fetch(path, {
          method,
          headers: { "Content-Type": "application/json" },
          body: body ? JSON.stringify(body) : undefined,
        });
        const data = await res.json().catch(() => ({}));
        showDecision(data.decision);
        return data;
      }

      document.getElementById("new-estimate").addEventListener("submit", (ev) => {
        ev.preventDefault();
        const name = ev.target.elements.estimate_name.value;
        call("POST", "/v1/estimates", { estimate_name: name });
      });

      document.body.addEventListener("click", (ev) => {
        const header = ev.target.closest("header");
        if (!header) return;
        const room = header.closest(".room");
        const est = header.closest(".estimate");
        if (room) {
          const path = "/v1/estimates/" + room.dataset.estimateId + "/rooms/" + room.dataset.roomId;
          call("POST", path + (room.classList.contains("expanded") ? "/collapse" : "/expand"));
        } else if (est) {
          const path = "/v1/estimates/" + est.dataset.estimateId;
          call("POST", path + (est.classList.contains("expanded") ? "/collapse" : "/expand"));
        }
      });

      const proto = location.protocol === "https:" ? "wss://" : "ws://";
      const ws = new WebSocket(proto + location.host + "/v1/events");
      ws.addEventListener("message", (msg) => {
        const ev = JSON.parse(msg.data);
        if (ev.type === "regions_updated") apply(ev.payload);
        if (ev.type === "loading") document.getElementById("loading").classList.toggle("visible", !!ev.payload);
      });

      call("POST", "/v1/modal/open");
    })();
  </script>
</body>
</html>`

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

type pageData struct {
	Title     string
	Root      view.RegionID
	Estimates template.HTML
}

// handlePage serves the estimator shell with the current estimates list
// already composed.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	doc := s.reconciler.Document()
	if !doc.Mounted(view.EstimatesRegion) {
		s.render(s.reconciler.RenderAll())
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, pageData{
		Title:     "Your estimates",
		Root:      view.EstimatesRegion,
		Estimates: doc.Compose(view.EstimatesRegion).HTML(),
	}); err != nil {
		s.logf("render page failed: %v", err)
	}
}

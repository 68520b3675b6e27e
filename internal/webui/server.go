package webui

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kayz/stageprompt/internal/agent"
	"github.com/kayz/stageprompt/internal/logger"
	"github.com/kayz/stageprompt/internal/promptbuild"
)

// SessionFactory creates a chat session for a new session id.
type SessionFactory func(stage promptbuild.Stage) (*agent.Session, error)

type Server struct {
	builder    *promptbuild.Builder
	location   *time.Location
	guardrails string
	newSession SessionFactory
	idleAfter  time.Duration
	startedAt  time.Time
	upgrader   websocket.Upgrader
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*chatSession
}

type chatSession struct {
	sess     *agent.Session
	lastUsed time.Time
}

type Options struct {
	Location   *time.Location
	Guardrails string
	// Sessions enables /api/chat when set.
	Sessions SessionFactory
	// SessionIdle is how long an unused chat session is kept before
	// PruneSessions drops it; 0 keeps sessions forever.
	SessionIdle time.Duration
}

// NewServer serves prompts assembled by builder. Section listings follow the
// builder's current catalog, so reloads show up without a restart.
func NewServer(builder *promptbuild.Builder, opts Options) *Server {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		builder:    builder,
		location:   loc,
		guardrails: opts.Guardrails,
		newSession: opts.Sessions,
		idleAfter:  opts.SessionIdle,
		startedAt:  time.Now().UTC(),
		now:        time.Now,
		sessions:   make(map[string]*chatSession),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sections", s.handleSections)
	mux.HandleFunc("/api/prompt", s.handlePrompt)
	mux.HandleFunc("/api/prompt/compact", s.handleCompact)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/ws/prompt", s.handlePromptStream)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(defaultIndexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"started_at": s.startedAt.Format(time.RFC3339),
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
		"sections":   s.builder.Catalog().Len(),
	})
}

type sectionInfo struct {
	Key   string `json:"key"`
	Chars int    `json:"chars"`
}

func (s *Server) handleSections(w http.ResponseWriter, _ *http.Request) {
	catalog := s.builder.Catalog()
	keys := catalog.Keys()
	out := make([]sectionInfo, 0, len(keys))
	for _, k := range keys {
		text, _ := catalog.Get(k)
		out = append(out, sectionInfo{Key: k, Chars: len(text)})
	}
	writeJSON(w, http.StatusOK, out)
}

// promptRequest is the wire form of an assembly request. WithDateTime asks the
// server to compute the date/time block itself.
type promptRequest struct {
	promptbuild.Request
	WithDateTime bool `json:"with_datetime,omitempty"`
}

type promptResponse struct {
	Stage    string   `json:"stage"`
	Sections []string `json:"sections"`
	Prompt   string   `json:"prompt"`
}

func (s *Server) assemble(pr promptRequest) promptResponse {
	req := pr.Request
	req.Stage = promptbuild.ParseStage(string(req.Stage))
	if req.DateTime == nil && pr.WithDateTime {
		req.DateTime = promptbuild.NewDateTimeInfo(time.Now().In(s.location))
	}
	if req.Guardrails == "" {
		req.Guardrails = s.guardrails
	}
	return promptResponse{
		Stage:    string(req.Stage),
		Sections: s.builder.Plan(req),
		Prompt:   s.builder.Build(req),
	}
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}
	writeJSON(w, http.StatusOK, s.assemble(req))
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	var ctx map[string]any
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&ctx); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": s.builder.BuildCompact(ctx)})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage,omitempty"`
	Text      string `json:"text"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
	Text      string `json:"text"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.newSession == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chat is not configured"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = "web-default"
	}

	sess, err := s.session(req.SessionID, promptbuild.ParseStage(req.Stage))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if req.Stage != "" {
		sess.SetStage(promptbuild.ParseStage(req.Stage))
	}

	reply, err := sess.Send(r.Context(), req.Text)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Stage: string(sess.Stage()), Text: reply})
}

func (s *Server) session(id string, stage promptbuild.Stage) (*agent.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.sessions[id]; ok {
		cs.lastUsed = s.now()
		return cs.sess, nil
	}
	sess, err := s.newSession(stage)
	if err != nil {
		return nil, err
	}
	s.sessions[id] = &chatSession{sess: sess, lastUsed: s.now()}
	return sess, nil
}

// PruneSessions drops chat sessions idle longer than Options.SessionIdle and
// returns how many were removed. A turn already in flight still completes.
func (s *Server) PruneSessions() int {
	if s.idleAfter <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleAfter)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, cs := range s.sessions {
		if cs.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Debug("[WebUI] pruned %d idle chat sessions, %d left", removed, len(s.sessions))
	}
	return removed
}

// handlePromptStream answers every JSON assembly request read from the socket
// with the assembled prompt, for pipelines that switch stages mid-call.
func (s *Server) handlePromptStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[WebUI] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req promptRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("[WebUI] prompt stream closed: %v", err)
			}
			return
		}
		if err := conn.WriteJSON(s.assemble(req)); err != nil {
			logger.Debug("[WebUI] prompt stream write failed: %v", err)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

const defaultIndexHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>stageprompt</title>
  <style>
    body { font-family: "Segoe UI", sans-serif; margin: 0; background: linear-gradient(145deg,#f7fafc,#e9eef7); color: #1f2937; }
    .wrap { max-width: 900px; margin: 0 auto; padding: 20px; }
    .panel { background: #fff; border-radius: 12px; box-shadow: 0 8px 30px rgba(15,23,42,.08); padding: 16px; }
    #out { min-height: 320px; max-height: 60vh; overflow: auto; white-space: pre-wrap; border: 1px solid #d1d5db; border-radius: 8px; padding: 12px; background: #f9fafb; }
    .row { display: flex; gap: 8px; margin-bottom: 10px; }
    select, input { padding: 10px; border: 1px solid #cbd5e1; border-radius: 8px; }
    input { flex: 1; }
    button { padding: 10px 16px; border: 0; border-radius: 8px; background: #0f766e; color: #fff; cursor: pointer; }
    button:hover { background: #0d9488; }
  </style>
</head>
<body>
  <div class="wrap">
    <div class="panel">
      <h2>Prompt preview</h2>
      <div class="row">
        <select id="stage">
          <option>startup</option>
          <option>mid_conversation</option>
          <option>active</option>
          <option>closing</option>
        </select>
        <input id="exclude" placeholder="exclude sections, comma separated" />
        <button id="build">Build</button>
      </div>
      <div id="out"></div>
    </div>
  </div>
  <script>
    const out = document.getElementById('out');
    async function build() {
      const exclude = document.getElementById('exclude').value.split(',').map(s => s.trim()).filter(Boolean);
      const body = { stage: document.getElementById('stage').value, exclude_sections: exclude, with_datetime: true };
      const resp = await fetch('/api/prompt', { method:'POST', headers:{'Content-Type':'application/json'}, body: JSON.stringify(body)});
      const data = await resp.json();
      out.textContent = data.prompt || data.error || '(empty)';
    }
    document.getElementById('build').addEventListener('click', build);
  </script>
</body>
</html>`

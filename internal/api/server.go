// Package api exposes the session registry over HTTP/JSON. Handlers validate
// input shape, delegate to the store, and map domain outcomes to status
// codes; they hold no session state of their own.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/leverai/focusgroup/internal/media"
	"github.com/leverai/focusgroup/internal/session"
	"github.com/leverai/focusgroup/internal/token"
	"github.com/leverai/focusgroup/internal/ws"
)

type Server struct {
	store       *session.Store
	rooms       media.Directory
	registrar   media.Registrar // nil when a real room service tracks membership
	minter      *token.Minter
	broadcaster *ws.Broadcaster // nil disables push updates
	livekitURL  string
	startedAt   time.Time
}

func NewServer(store *session.Store, rooms media.Directory, registrar media.Registrar, minter *token.Minter, broadcaster *ws.Broadcaster, livekitURL string) *Server {
	return &Server{
		store:       store,
		rooms:       rooms,
		registrar:   registrar,
		minter:      minter,
		broadcaster: broadcaster,
		livekitURL:  livekitURL,
		startedAt:   time.Now(),
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/", s.handleFallback)
}

type createRequest struct {
	RoomName string `json:"roomName"`
}

type joinRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	IsOrganizer bool   `json:"isOrganizer"`
}

type joinResponse struct {
	Token       string `json:"token"`
	SessionID   string `json:"sessionId"`
	RoomName    string `json:"roomName"`
	Identity    string `json:"identity"`
	IsOrganizer bool   `json:"isOrganizer"`
	LivekitURL  string `json:"livekitUrl,omitempty"`
}

type raiseHandResponse struct {
	Accepted      bool `json:"accepted"`
	QueuePosition int  `json:"queuePosition"`
}

type statusResponse struct {
	SessionID           string         `json:"sessionId"`
	RoomName            string         `json:"roomName"`
	Status              session.Status `json:"status"`
	AgentJoined         bool           `json:"agentJoined"`
	AgentIdentity       string         `json:"agentIdentity"`
	ParticipantCount    int            `json:"participantCount"`
	LivekitParticipants []string       `json:"livekitParticipants"`
}

type healthResponse struct {
	Status            string  `json:"status"`
	Service           string  `json:"service"`
	Sessions          int     `json:"sessions"`
	Observers         int     `json:"observers"`
	UptimeSeconds     int64   `json:"uptimeSeconds"`
	CPUPercent        float64 `json:"cpuPercent"`
	MemoryRSSBytes    uint64  `json:"memoryRssBytes"`
	LivekitConfigured bool    `json:"livekitConfigured"`
}

// handleSessions serves the collection endpoint: POST creates a session.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		s.preflight(w)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// The body is optional; an omitted or unreadable roomName falls back to
	// a generated one.
	var req createRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	rec := s.store.Create(req.RoomName)
	log.Printf("Session created: id=%s room=%s", rec.ID, rec.RoomName)
	s.queueUpdate(rec)

	s.writeJSON(w, http.StatusCreated, rec)
}

// handleSessionRoutes dispatches /api/sessions/{id} and its sub-actions. An
// unknown id is 404 for every recognized path; a recognized path with the
// wrong verb is 405.
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		s.preflight(w)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "", "join", "start", "end", "raise-hand", "status":
	default:
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if id == "" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	if _, ok := s.store.Get(id); !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		s.getSession(w, id)
	case r.Method == http.MethodPost && action == "join":
		s.join(w, r, id)
	case r.Method == http.MethodPost && action == "start":
		s.transition(w, id, session.InSession)
	case r.Method == http.MethodPost && action == "end":
		s.transition(w, id, session.Ended)
	case r.Method == http.MethodPost && action == "raise-hand":
		s.raiseHand(w, r, id)
	case r.Method == http.MethodGet && action == "status":
		s.status(w, r, id)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) getSession(w http.ResponseWriter, id string) {
	rec, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) join(w http.ResponseWriter, r *http.Request, id string) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid join payload")
		return
	}
	if req.DisplayName == "" {
		s.writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}

	p, rec, ok := s.store.AddParticipant(id, req.DisplayName, req.Email, req.IsOrganizer)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if s.registrar != nil {
		s.registrar.Join(rec.RoomName, media.Participant{
			Identity: p.Identity,
			Name:     req.DisplayName,
		})
	}

	tok, err := s.minter.RoomToken(rec.RoomName, p.Identity)
	if err != nil {
		log.Printf("Token mint failed: session=%s identity=%s err=%v", id, p.Identity, err)
		s.writeError(w, http.StatusInternalServerError, "failed to mint room token")
		return
	}

	log.Printf("Participant joined: session=%s room=%s identity=%s organizer=%t", id, rec.RoomName, p.Identity, req.IsOrganizer)
	s.queueUpdate(rec)

	s.writeJSON(w, http.StatusOK, joinResponse{
		Token:       tok,
		SessionID:   id,
		RoomName:    rec.RoomName,
		Identity:    p.Identity,
		IsOrganizer: req.IsOrganizer,
		LivekitURL:  s.livekitURL,
	})
}

func (s *Server) transition(w http.ResponseWriter, id string, target session.Status) {
	rec, ok := s.store.Transition(id, target)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	log.Printf("Session transition: id=%s room=%s status=%s", id, rec.RoomName, rec.Status)
	s.queueUpdate(rec)

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) raiseHand(w http.ResponseWriter, r *http.Request, id string) {
	var ev session.HandRaiseEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	if err := ev.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}

	pos, ok := s.store.AppendEvent(id, ev)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	log.Printf("Hand raised: session=%s participant=%s position=%d", id, ev.ParticipantID, pos)
	if rec, ok := s.store.Get(id); ok {
		s.queueUpdate(rec)
	}

	s.writeJSON(w, http.StatusAccepted, raiseHandResponse{
		Accepted:      true,
		QueuePosition: pos,
	})
}

// status reads the record and overlays live room membership. Agent presence
// comes from the directory's explicit agent flag; the identity latches onto
// the record once observed.
func (s *Server) status(w http.ResponseWriter, r *http.Request, id string) {
	rec, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	members, err := s.rooms.ListParticipants(r.Context(), rec.RoomName)
	if err != nil {
		// A directory hiccup must not fail the status read; report what the
		// record already knows.
		log.Printf("Room listing failed: room=%s err=%v", rec.RoomName, err)
		members = nil
	}

	agentPresent := false
	identities := make([]string, 0, len(members))
	for _, m := range members {
		identities = append(identities, m.Identity)
		if m.Agent && !agentPresent {
			agentPresent = true
			if updated, ok := s.store.ObserveAgent(id, m.Identity); ok {
				rec = updated
			}
		}
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		SessionID:           rec.ID,
		RoomName:            rec.RoomName,
		Status:              rec.Status,
		AgentJoined:         agentPresent,
		AgentIdentity:       rec.AgentIdentity,
		ParticipantCount:    len(members),
		LivekitParticipants: identities,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		s.preflight(w)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := healthResponse{
		Status:            "ok",
		Service:           "focusgroup-api",
		Sessions:          s.store.Count(),
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		LivekitConfigured: s.minter.Configured(),
	}
	if s.broadcaster != nil {
		resp.Observers = s.broadcaster.ClientCount()
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			resp.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			resp.MemoryRSSBytes = mem.RSS
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleFallback catches every unregistered path: OPTIONS still gets its
// CORS preflight answer, everything else is a JSON 404.
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		s.preflight(w)
		return
	}
	s.writeError(w, http.StatusNotFound, "not found")
}

func (s *Server) queueUpdate(rec *session.Record) {
	if s.broadcaster != nil {
		s.broadcaster.QueueUpdate(rec)
	}
}

func (s *Server) setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) preflight(w http.ResponseWriter) {
	s.setCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	s.setCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode error: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

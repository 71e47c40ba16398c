package www

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pickpoint/vision"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func parseLimit(r *http.Request, fallback int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Auth ---

func (h *Handlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.engine.DB().GetAdminUser(req.Username)
	if err != nil || !checkPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.sessions.setUser(w, r, user.Username)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.clear(w, r)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current string `json:"current"`
		New     string `json:"new"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	username, _ := h.sessions.getUser(r)
	user, err := h.engine.DB().GetAdminUser(username)
	if err != nil || !checkPassword(req.Current, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	hash, err := hashPassword(req.New)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.engine.DB().UpdateAdminPassword(username, hash); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Cell status ---

func (h *Handlers) apiStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"cell_id":    h.engine.AppConfig().CellID,
		"link_state": h.engine.LinkState().String(),
		"status":     h.engine.LastStatus(),
		"session":    h.engine.Session(),
	})
}

func (h *Handlers) apiListCells(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := h.engine.Poses().ListCellIDs(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		pose, _ := h.engine.Poses().GetPose(ctx, id)
		mirror, _ := h.engine.Poses().GetSession(ctx, id)
		out = append(out, map[string]interface{}{
			"cell_id": id,
			"pose":    pose,
			"session": mirror,
		})
	}
	writeJSON(w, out)
}

// --- Session operations ---

func (h *Handlers) apiSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Session())
}

func (h *Handlers) apiStartBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaptureIdx int `json:"capture_idx"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.engine.StartBatch(req.CaptureIdx)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"session_id": id})
}

func (h *Handlers) apiStartTargets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Targets []vision.Centroid `json:"targets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.engine.StartWithTargets(req.Targets)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"session_id": id})
}

func (h *Handlers) apiPause(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Pause(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiResume(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Resume(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiAbort(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Abort(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.DB().ListSessions(parseLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, sessions)
}

func (h *Handlers) apiGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.engine.DB().GetSession(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	targets, err := h.engine.DB().ListSessionTargets(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"session": rec,
		"targets": targets,
	})
}

func (h *Handlers) apiListCommands(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.DB().ListRecentCommands(parseLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, entries)
}

// --- Sequencing ---

func (h *Handlers) apiSequencePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points []vision.Centroid `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"targets": h.engine.SequencePreview(req.Points),
	})
}

// --- Robot operations ---

func (h *Handlers) apiRobotStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.StopRobot())
}

func (h *Handlers) apiRobotQueryStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.QueryStatus())
}

func (h *Handlers) apiRobotEcho(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.EchoTest())
}

func (h *Handlers) apiRobotCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string    `json:"command"`
		Args    []float64 `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.engine.ManualCommand(req.Command, req.Args...)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, res)
}

func (h *Handlers) apiRobotConnect(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ConnectLink(); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiRobotDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DisconnectLink(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Config ---

func (h *Handlers) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.AppConfig().Redacted())
}

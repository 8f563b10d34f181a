package adminapi

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/edirooss/tock-kernel/internal/kernel"
	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/edirooss/tock-kernel/pkg/jsonx"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// processView is the wire shape of a process table entry, deliberately
// excluding anything below the kernel's own abstraction (no raw memory, no
// Runtime internals) — the introspection surface shows what the source
// kernel's process console would: name, generation, lifecycle state,
// assigned ShortID, and pending task count.
type processView struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	Generation   uint64 `json:"generation"`
	State        string `json:"state"`
	Schedulable  bool   `json:"schedulable"`
	ShortIDFixed bool   `json:"short_id_fixed"`
	ShortIDValue uint32 `json:"short_id_value,omitempty"`
	PendingTasks int    `json:"pending_tasks"`
}

func viewOf(idx int, p *process.Process) processView {
	sid := p.ShortID()
	return processView{
		Index:        idx,
		Name:         p.Name(),
		Generation:   p.Generation(),
		State:        p.State().String(),
		Schedulable:  p.State().Schedulable(),
		ShortIDFixed: !sid.LocallyUnique,
		ShortIDValue: sid.Value,
		PendingTasks: p.TaskQueueLen(),
	}
}

// handleListProcesses returns every occupied process-table slot, in table
// order.
func (s *Server) handleListProcesses(c *gin.Context) {
	views := make([]processView, 0, s.kernel.Slots())
	s.kernel.ProcessEach(func(idx int, p *process.Process) {
		views = append(views, viewOf(idx, p))
	})
	c.JSON(http.StatusOK, gin.H{"processes": views, "work": s.kernel.Work()})
}

// handleGetProcess returns one process-table slot by index.
func (s *Server) handleGetProcess(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid index"})
		return
	}
	p, _, ok := s.kernel.ProcessAt(idx)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "no process at that index"})
		return
	}
	c.JSON(http.StatusOK, viewOf(idx, p))
}

// handleDump dumps the full process table via go-spew, for interactive
// debugging only — never shown to an untrusted caller.
func (s *Server) handleDump(c *gin.Context) {
	var dump []string
	s.kernel.ProcessEach(func(idx int, p *process.Process) {
		dump = append(dump, spew.Sdump(viewOf(idx, p)))
	})
	c.String(http.StatusOK, "%s", joinDumps(dump))
}

func joinDumps(parts []string) string {
	out := ""
	for _, p := range parts {
		out += p
	}
	return out
}

// hardfaultAllReq is intentionally empty: the operation takes no
// parameters, but the request is still decoded with ParseStrictJSONBody so
// a caller that sends an unexpected body shape gets a 400 instead of the
// extra bytes being silently ignored.
type hardfaultAllReq struct{}

// handleHardfaultAll faults every schedulable process. Gated by
// RequireSession + ValidateSessionCSRF at the router level and by
// ProcessManagementCapability here.
func (s *Server) handleHardfaultAll(c *gin.Context) {
	var req hardfaultAllReq
	if c.Request.ContentLength != 0 {
		if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
	}
	n := s.kernel.HardfaultAllApps(kernel.NewProcessManagementCapability())
	c.JSON(http.StatusOK, gin.H{"faulted": n})
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin checks the board's single configured admin credential and,
// on success, opens a session plus a fresh CSRF token — the teacher's
// LoginHandler.Login pattern, minus the multi-user auth.Service it has no
// analogue for here.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginReq
	if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.adminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.adminPass)) == 1
	if !userOK || !passOK {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUIDKey, req.Username)
	session.Set(sessionCSRFKey, uuid.New().String())
	session.Set("last_touch", time.Now().Unix())
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// handleLogout clears the session, mirroring the teacher's Logout.
func (s *Server) handleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{
		Path:     "/",
		MaxAge:   -1,
		Secure:   !s.isDev,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	_ = session.Save()
	c.Status(http.StatusNoContent)
}

// handleMe returns the signed-in admin's identity and current CSRF token,
// the way a session-based SPA fetches its own token before the first
// mutating call.
func (s *Server) handleMe(c *gin.Context) {
	session := sessions.Default(c)
	uid, _ := session.Get(sessionUIDKey).(string)
	csrf, _ := session.Get(sessionCSRFKey).(string)
	c.JSON(http.StatusOK, gin.H{"username": uid, "csrf_token": csrf})
}

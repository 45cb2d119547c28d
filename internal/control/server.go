package control

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"kyco/internal/config"
	"kyco/internal/events"
	"kyco/internal/executor"
	"kyco/internal/group"
	"kyco/internal/kerrors"
	"kyco/internal/kyco"
	"kyco/internal/store"
	"kyco/internal/worktree"
)

// tokenHeader is the auth header spec.md §6.1 requires on every request.
const tokenHeader = "X-KYCO-Token"

// Server wires the job store, executor, and event bus behind gin routes,
// the same HTTP framework the teacher uses for its own control-plane
// (internal/api/api.go), with rs/cors layered on for IDE webview origins
// (the pack's quorum-ai config uses the identical cors.New(...).Handler
// wrapping pattern).
type Server struct {
	engine *gin.Engine
	cfg    *config.Snapshot
	store  *store.Store
	exec   *executor.Executor
	groups *group.Coordinator
	wt     *worktree.Manager
	bus    *events.Bus
}

// NewServer builds a Server ready to ListenAndServe.
func NewServer(cfg *config.Snapshot, st *store.Store, exec *executor.Executor, groups *group.Coordinator, wt *worktree.Manager, bus *events.Bus) *Server {
	s := &Server{cfg: cfg, store: st, exec: exec, groups: groups, wt: wt, bus: bus}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the fully wrapped http.Handler (gin routes behind CORS).
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", tokenHeader},
		AllowCredentials: false,
	})
	return c.Handler(s.engine)
}

func (s *Server) routes() {
	api := s.engine.Group("/", s.authMiddleware)

	api.POST("/jobs", s.createJob)
	api.POST("/jobs/batch", s.createBatch)
	api.GET("/jobs", s.listJobs)
	api.GET("/jobs/:id", s.getJob)
	api.POST("/jobs/:id/start", s.startJob)
	api.POST("/jobs/:id/abort", s.abortJob)
	api.POST("/jobs/:id/continue", s.continueJob)
	api.POST("/jobs/:id/log", s.logJob)
	api.DELETE("/jobs/:id", s.deleteJob)

	api.GET("/groups/:id", s.getGroup)
	api.POST("/groups/:id/select", s.selectGroup)
	api.POST("/groups/:id/discard", s.discardGroup)

	api.GET("/events", s.streamEvents)
	api.GET("/status", s.status)
	api.GET("/config", s.getConfig)

	s.engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
}

func (s *Server) authMiddleware(c *gin.Context) {
	want := s.cfg.Get().Settings.HTTPToken
	if want == "" {
		c.Next()
		return
	}
	got := c.GetHeader(tokenHeader)
	if got != want {
		s.fail(c, kerrors.ErrUnauthorized)
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(kerrors.HTTPStatus(err), ErrorResponse{Error: err.Error()})
}

func jobIDParam(c *gin.Context) (kyco.JobID, error) {
	raw := c.Param("id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q: %w", raw, kerrors.ErrInvalidRequest)
	}
	return kyco.JobID(n), nil
}

func groupIDParam(c *gin.Context) (kyco.GroupID, error) {
	raw := c.Param("id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid group id %q: %w", raw, kerrors.ErrInvalidRequest)
	}
	return kyco.GroupID(n), nil
}

func (s *Server) createJob(c *gin.Context) {
	var req JobCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", kerrors.ErrInvalidRequest, err))
		return
	}

	template := kyco.Job{
		Skill:         req.Skill,
		SourceFile:    req.Selection.File,
		LineStart:     req.Selection.LineStart,
		LineEnd:       req.Selection.LineEnd,
		Target:        req.Target,
		Description:   req.Description,
		IDEContext:    req.Selection.FormatIDEContext(),
		ForceWorktree: req.ForceWorktree,
		Status:        kyco.StatusPending,
	}

	if len(req.Agents) > 0 {
		groupID, ids := s.groups.Fan(template, req.Agents)
		for _, id := range ids {
			job, _ := s.store.Get(id)
			s.bus.Publish(events.New(events.TypeJobCreated, job))
			if req.Run {
				_ = s.store.SetStatus(id, kyco.StatusQueued)
				s.exec.Submit(id)
			}
		}
		c.JSON(http.StatusCreated, JobGroupCreateResponse{JobIDs: ids, GroupID: groupID})
		return
	}

	template.AgentID = req.AgentID
	id := s.store.CreateJob(&template)
	s.bus.Publish(events.New(events.TypeJobCreated, template))

	if req.Run {
		_ = s.store.SetStatus(id, kyco.StatusQueued)
		s.exec.Submit(id)
	}

	stored, _ := s.store.Get(id)
	c.JSON(http.StatusCreated, JobCreateResponse{Job: stored})
}

func (s *Server) createBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", kerrors.ErrInvalidRequest, err))
		return
	}

	maxPerFile := s.cfg.Get().Settings.MaxJobsPerFile
	created := make([]kyco.Job, 0, len(req.Files))
	for _, f := range req.Files {
		if maxPerFile > 0 {
			existing := 0
			for _, j := range s.store.List() {
				if j.SourceFile == f.Path && !j.Status.Terminal() {
					existing++
				}
			}
			if existing >= maxPerFile {
				continue
			}
		}
		job := kyco.Job{
			AgentID:     req.AgentID,
			Skill:       req.Skill,
			SourceFile:  f.Path,
			Description: req.Description,
			Status:      kyco.StatusQueued,
		}
		id := s.store.CreateJob(&job)
		s.exec.Submit(id)
		stored, _ := s.store.Get(id)
		created = append(created, stored)
	}
	c.JSON(http.StatusCreated, gin.H{"jobs": created})
}

func (s *Server) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.store.List()})
}

func (s *Server) getJob(c *gin.Context) {
	id, err := jobIDParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	job, err := s.store.Get(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) startJob(c *gin.Context) {
	id, err := jobIDParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.SetStatus(id, kyco.StatusQueued); err != nil {
		s.fail(c, err)
		return
	}
	s.exec.Submit(id)
	job, _ := s.store.Get(id)
	c.JSON(http.StatusOK, job)
}

func (s *Server) abortJob(c *gin.Context) {
	id, err := jobIDParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.exec.Abort(id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) continueJob(c *gin.Context) {
	id, err := jobIDParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var req JobContinueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", kerrors.ErrInvalidRequest, err))
		return
	}

	original, err := s.store.Get(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !original.Status.Terminal() {
		s.fail(c, fmt.Errorf("job %d still active: %w", id, kerrors.ErrIllegalTransition))
		return
	}

	// continue never mutates the original job (spec.md §3.2 invariant 6):
	// it clones a fresh Pending job that reuses the finished job's bridge
	// session, so the original stays a stable record of that run.
	next := original.Clone()
	next.ID = 0
	next.GroupID = 0
	next.Description = req.Instruction
	next.Status = kyco.StatusPending
	next.CreatedAt = time.Time{}
	next.StartedAt = nil
	next.FinishedAt = nil
	next.CancelRequested = false
	next.CancelSent = false
	next.FullResponse = ""
	next.ErrorMessage = ""
	next.Result = nil
	next.ChangedFiles = nil
	next.GitWorktreePath = ""
	next.BranchName = ""
	next.BlockedBy = 0
	next.BridgeSessionID = original.BridgeSessionID

	newID := s.store.CreateJob(&next)
	s.bus.Publish(events.New(events.TypeJobCreated, next))

	_ = s.store.SetStatus(newID, kyco.StatusQueued)
	s.exec.Submit(newID)

	job, _ := s.store.Get(newID)
	c.JSON(http.StatusOK, JobContinueResponse{Job: job})
}

func (s *Server) logJob(c *gin.Context) {
	id, err := jobIDParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var req LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", kerrors.ErrInvalidRequest, err))
		return
	}
	if err := s.store.Touch(id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteJob(c *gin.Context) {
	id, err := jobIDParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var req JobDeleteRequest
	_ = c.ShouldBindJSON(&req)

	job, err := s.store.Get(id)
	if err != nil {
		s.fail(c, err)
		return
	}

	kept := req.ResolvedKeepWorktree()
	if !kept && job.GitWorktreePath != "" && s.wt != nil {
		_ = s.wt.Remove(c.Request.Context(), job.GitWorktreePath, true)
	}

	if err := s.store.Remove(id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, JobDeleteResponse{Deleted: true, WorktreeKept: kept})
}

func (s *Server) getGroup(c *gin.Context) {
	id, err := groupIDParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	g, err := s.groups.Poll(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) selectGroup(c *gin.Context) {
	groupID, err := groupIDParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var req struct {
		JobID kyco.JobID `json:"job_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", kerrors.ErrInvalidRequest, err))
		return
	}
	if err := s.groups.Select(groupID, req.JobID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) discardGroup(c *gin.Context) {
	groupID, err := groupIDParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.groups.Discard(groupID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getConfig exposes the current configuration snapshot read-only, so the
// CLI's agent/mode/chain/skill subcommands (spec.md §6.3) can list and
// describe configured entities without parsing config.toml themselves.
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Get())
}

func (s *Server) status(c *gin.Context) {
	jobs := s.store.List()
	running := 0
	for _, j := range jobs {
		if j.Status == kyco.StatusRunning {
			running++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs_total":   len(jobs),
		"jobs_running": running,
		"settings":     s.cfg.Get().Settings,
	})
}

// streamEvents serves the control surface's Server-Sent Events endpoint,
// using gin's SSEvent writer (gin-contrib/sse, a transitive dependency of
// gin-gonic/gin already pulled in by the teacher) since this side is a
// server, unlike the client-side bufio.Scanner reader in internal/bridge.
func (s *Server) streamEvents(c *gin.Context) {
	ch, unsubscribe := s.bus.Subscribe(100)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	c.Stream(func(w http.ResponseWriter) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"time": time.Now()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

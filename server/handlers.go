package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"auto_blog_package_publisher/artifact"
	"auto_blog_package_publisher/generator"
	"auto_blog_package_publisher/publisher"
)

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": apiError{Message: msg, Code: code}})
}

type generateReq struct {
	SourceTitle string             `json:"source_title"`
	SourceBody  string             `json:"source_body"`
	SourceName  string             `json:"source_name"`
	SourceURL   string             `json:"source_url"`
	Toggles     *generator.Toggles `json:"toggles"`
}

// POST /api/packages
func (s *Server) handleGenerate(c *gin.Context) {
	var body generateReq
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	req := generator.Request{
		SourceTitle: body.SourceTitle,
		SourceBody:  body.SourceBody,
		SourceName:  body.SourceName,
		SourceURL:   body.SourceURL,
		Toggles:     generator.AllToggles(),
	}
	if body.Toggles != nil {
		req.Toggles = *body.Toggles
	}
	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.runTimeout)
	defer cancel()
	pkg := s.gen.Run(ctx, req)
	s.cache.set(pkg)

	status := http.StatusOK
	if pkg.Fatal() {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"package": pkg, "placeholders": pkg.Placeholders()})
}

// GET /api/packages/:id
func (s *Server) handlePackage(c *gin.Context) {
	pkg, ok := s.cache.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "package_not_found", errors.New("no package with this run id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": pkg, "placeholders": pkg.Placeholders()})
}

// GET /api/artifacts
func (s *Server) handleArtifactList(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, "storage_disabled", errors.New("artifact storage is disabled"))
		return
	}
	names, err := s.store.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": names})
}

// GET /api/artifacts/:id
func (s *Server) handleArtifact(c *gin.Context) {
	rec, ok := s.loadArtifact(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact": rec})
}

func (s *Server) loadArtifact(c *gin.Context, id string) (artifact.Record, bool) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, "storage_disabled", errors.New("artifact storage is disabled"))
		return artifact.Record{}, false
	}
	rec, err := s.store.Get(c.Request.Context(), id)
	if errors.Is(err, artifact.ErrNotFound) {
		respondError(c, http.StatusNotFound, "artifact_not_found", err)
		return artifact.Record{}, false
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "artifact_read_failed", err)
		return artifact.Record{}, false
	}
	return rec, true
}

type publishReq struct {
	RunID    string            `json:"run_id"`
	Artifact string            `json:"artifact"`
	Fields   *publisher.Fields `json:"fields"`
}

// POST /api/publish 接受 run_id、artifact 或直接给出 fields 三选一。
func (s *Server) handlePublish(c *gin.Context) {
	if s.pub == nil {
		respondError(c, http.StatusServiceUnavailable, "publisher_disabled", errors.New("wordpress is not configured"))
		return
	}
	var body publishReq
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	var fields publisher.Fields
	switch {
	case body.Fields != nil:
		fields = *body.Fields
	case body.RunID != "":
		pkg, ok := s.cache.get(body.RunID)
		if !ok {
			respondError(c, http.StatusNotFound, "package_not_found", errors.New("no package with this run id"))
			return
		}
		if pkg.Fatal() {
			respondError(c, http.StatusUnprocessableEntity, "package_failed", errors.New(pkg.Error))
			return
		}
		fields = publisher.FromPackage(pkg, s.graphicsDir)
	case body.Artifact != "":
		rec, ok := s.loadArtifact(c, body.Artifact)
		if !ok {
			return
		}
		pkg, err := generator.PackageFromRecord(rec)
		if err != nil {
			respondError(c, http.StatusUnprocessableEntity, "artifact_invalid", err)
			return
		}
		if pkg.Fatal() {
			respondError(c, http.StatusUnprocessableEntity, "package_failed", errors.New(pkg.Error))
			return
		}
		fields = publisher.FromPackage(pkg, s.graphicsDir)
	default:
		respondError(c, http.StatusBadRequest, "invalid_body", errors.New("one of run_id, artifact or fields is required"))
		return
	}

	res := s.pub.Publish(c.Request.Context(), fields)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"result": res})
}

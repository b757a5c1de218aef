package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shinji-kodama/classlens/internal/browser"
	"github.com/shinji-kodama/classlens/internal/model"
)

// maxUploadSize caps archives uploaded through POST /api/containers.
const maxUploadSize = 256 << 20

type handlers struct {
	session     *browser.Session
	logger      *zap.Logger
	archiveRoot string
}

// containerResponse describes one loaded container.
type containerResponse struct {
	Name      string `json:"name"`
	Source    string `json:"source,omitempty"`
	MainClass string `json:"mainClass,omitempty"`
	Classes   int    `json:"classes"`
}

type loadRequest struct {
	Paths []string `json:"paths" binding:"required,min=1"`
}

type classResponse struct {
	Container string `json:"container"`
	Path      string `json:"path"`
	Source    string `json:"source"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Output string `json:"output,omitempty"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"containers": len(h.session.Containers()),
	})
}

func (h *handlers) listContainers(c *gin.Context) {
	containers := h.session.Containers()
	out := make([]containerResponse, 0, len(containers))
	for _, ct := range containers {
		out = append(out, containerResponse{
			Name:      ct.Name,
			Source:    ct.Source,
			MainClass: ct.MainClass,
			Classes:   len(ct.Classes),
		})
	}
	c.JSON(http.StatusOK, out)
}

// loadContainers accepts either {"paths": [...]} naming archives below the
// archive root, or a multipart form with an "archive" file.
func (h *handlers) loadContainers(c *gin.Context) {
	var report browser.LoadReport

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("archive")
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if file.Size > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "archive too large"})
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		defer f.Close()
		raw, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		report = h.session.LoadArchive(path.Base(file.Filename), raw)
	} else {
		var req loadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if h.archiveRoot == "" {
			c.JSON(http.StatusForbidden, errorResponse{Error: "loading archives by path is disabled; upload them instead"})
			return
		}
		paths := make([]string, 0, len(req.Paths))
		for _, p := range req.Paths {
			resolved, err := resolveUnder(h.archiveRoot, p)
			if err != nil {
				c.JSON(http.StatusForbidden, errorResponse{Error: err.Error()})
				return
			}
			paths = append(paths, resolved)
		}
		report = h.session.OnContainersLoaded(c.Request.Context(), paths)
	}

	status := http.StatusOK
	if len(report.Loaded) == 0 && len(report.Failures) > 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, report)
}

// resolveUnder resolves p against root and rejects results outside root.
// Relative paths are taken relative to root. Symbolic links are followed
// so a link inside root cannot point outside it.
func resolveUnder(root, p string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if realRoot, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = realRoot
	}

	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)
	if real, err := filepath.EvalSymlinks(target); err == nil {
		target = real
	}

	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the archive root", p)
	}
	return target, nil
}

func (h *handlers) tree(c *gin.Context) {
	if filter := c.Query("filter"); filter != "" {
		root, err := h.session.FilteredTree(filter)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, root)
		return
	}
	c.JSON(http.StatusOK, h.session.NamespaceTree())
}

func (h *handlers) class(c *gin.Context) {
	containerName := c.Param("container")
	classPath := strings.TrimPrefix(c.Param("path"), "/")

	text, err := h.session.OnClassSelected(c.Request.Context(), containerName, classPath)
	if err != nil {
		h.writeClassError(c, err)
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, text)
		return
	}
	c.JSON(http.StatusOK, classResponse{Container: containerName, Path: classPath, Source: text})
}

func (h *handlers) writeClassError(c *gin.Context, err error) {
	var de *model.DecompileError
	switch {
	case errors.Is(err, model.ErrContainerNotFound), errors.Is(err, model.ErrClassNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &de):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Error:  browser.ErrorPlaceholder + ": " + err.Error(),
			Output: de.Output,
		})
	case c.Request.Context().Err() != nil:
		// Client went away; nobody reads the response.
		c.Status(499)
	default:
		h.logger.Error("class request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (h *handlers) reset(c *gin.Context) {
	h.session.Reset()
	c.Status(http.StatusNoContent)
}

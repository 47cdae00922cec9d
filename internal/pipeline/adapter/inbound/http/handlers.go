package http_handler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strconv"
	"time"

	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// ownedSession loads the session and hides sessions of other users.
func (s *Server) ownedSession(c *fiber.Ctx) (*domain.Session, error) {
	session, err := s.service.GetSession(c.Context(), c.Params("id"))
	if err != nil {
		return nil, serviceError(err)
	}
	if session.UserID != userID(c) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}
	return session, nil
}

func (s *Server) handleStartSession(c *fiber.Ctx) error {
	uid := userID(c)

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Request must be multipart/form-data")
	}

	headers := form.File["files"]
	files := make([]domain.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Failed to open %s: %v", fh.Filename, err))
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Failed to read %s: %v", fh.Filename, err))
		}
		files = append(files, domain.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	req := domain.StartRequest{
		SessionID: formValue(form.Value, "session_id"),
		UserID:    uid,
		Files:     files,
	}
	if raw := formValue(form.Value, "file_count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "file_count must be a non-negative integer")
		}
		req.FileCount = n
	}

	session, err := s.service.StartSession(c.Context(), req)
	if err != nil {
		sdklogger.Warnw("Session start rejected", "user_id", uid, "files", len(files), "error", err.Error())
		return serviceError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(session)
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	uid := userID(c)
	sessions, err := s.service.ListSessions(c.Context(), uid)
	if err != nil {
		return serviceError(err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	session, err := s.ownedSession(c)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

// handleEvents streams poller observations as server-sent events until the
// session reaches a terminal status or the client goes away.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	session, err := s.ownedSession(c)
	if err != nil {
		return err
	}

	var interval time.Duration
	if raw := c.Query("interval_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "interval_ms must be a positive integer")
		}
		interval = time.Duration(ms) * time.Millisecond
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	sessionID := session.SessionID
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for ev := range s.service.WatchSession(ctx, sessionID, interval) {
			if err := writeEvent(w, ev); err != nil {
				sdklogger.Debugw("Event stream closed", "session_id", sessionID, "error", err.Error())
				return
			}
		}
	})
	return nil
}

type eventPayload struct {
	Session *domain.Session `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func writeEvent(w *bufio.Writer, ev domain.SessionEvent) error {
	name := "status"
	payload := eventPayload{Session: ev.Session}
	if ev.Err != nil {
		name = "error"
		payload.Error = ev.Err.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) handleReissueArchiveURL(c *fiber.Ctx) error {
	session, err := s.ownedSession(c)
	if err != nil {
		return err
	}

	archive, err := s.service.ReissueArchiveURL(c.Context(), session.SessionID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(archive)
}

// resultArtifacts extracts the session's result archive. Nil artifacts with a nil
// error mean the result is not available yet.
func (s *Server) resultArtifacts(c *fiber.Ctx) ([]domain.Artifact, *domain.Session, error) {
	session, err := s.ownedSession(c)
	if err != nil {
		return nil, nil, err
	}
	if session.Status != domain.StatusCompleted || session.ResultArchiveURL == "" {
		return nil, session, nil
	}

	artifacts, err := s.service.ExtractArtifacts(c.Context(), session.ResultArchiveURL)
	if err != nil {
		sdklogger.Errorw("Artifact extraction failed", "session_id", session.SessionID, "error", err.Error())
		return nil, nil, serviceError(err)
	}
	return artifacts, session, nil
}

func pending(c *fiber.Ctx, session *domain.Session) error {
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": session.Status, "artifacts": []domain.Artifact{}})
}

func (s *Server) handleListArtifacts(c *fiber.Ctx) error {
	artifacts, session, err := s.resultArtifacts(c)
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		return pending(c, session)
	}
	return c.JSON(fiber.Map{"status": session.Status, "artifacts": artifacts})
}

func (s *Server) handleGetArtifact(c *fiber.Ctx) error {
	artifacts, session, err := s.resultArtifacts(c)
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		return pending(c, session)
	}

	name, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid artifact name")
	}
	for _, a := range artifacts {
		if a.Name != name {
			continue
		}
		contentType := mime.TypeByExtension(path.Ext(a.Name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Set("Content-Type", contentType)
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(a.Name)))
		c.Set("X-Artifact-Type", string(a.Type))
		return c.Send(a.Payload)
	}
	return fiber.NewError(fiber.StatusNotFound, "Artifact not found")
}

func (s *Server) handleRecover(c *fiber.Ctx) error {
	uid := userID(c)
	n, err := s.service.ResetStuck(c.Context(), uid, 0)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"reset": n})
}

func (s *Server) handlePurgeFailed(c *fiber.Ctx) error {
	uid := userID(c)
	n, err := s.service.PurgeFailed(c.Context(), uid)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func (s *Server) handleSweep(c *fiber.Ctx) error {
	report, err := s.service.Sweep(c.Context(), 0)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(report)
}

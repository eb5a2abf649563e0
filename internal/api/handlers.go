package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/service"
)

// multipartOverhead leaves room for form fields around the file parts.
const multipartOverhead = 1 << 20

func (s *Server) handleFindCandidates(c *gin.Context) {
	var req domain.CandidateSearchRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "request body must be a JSON object")
		return
	}

	resp, err := s.deps.Filter.FindCandidates(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUploadRecord(c *gin.Context) {
	if s.deps.Intake == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "record intake is not configured"})
		return
	}

	maxBytes := s.cfg.Intake.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeUploadError(c, errFileTooLarge)
			return
		}
		badRequest(c, "multipart field 'file' is required")
		return
	}
	data, err := s.readPDF(fh)
	if err != nil {
		s.writeUploadError(c, err)
		return
	}

	result, err := s.deps.Intake.ProcessRecord(c.Request.Context(), c.PostForm("user_id"), data)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": result})
}

func (s *Server) handleBatchUpload(c *gin.Context) {
	if s.deps.Batch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "record intake is not configured"})
		return
	}

	limit := s.cfg.Intake.MaxUploadBytes * int64(max(s.cfg.Intake.MaxBatchFiles, 1))
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "request must be multipart/form-data")
		return
	}
	headers := form.File["files"]
	userIDs := form.Value["user_ids"]
	if len(headers) != len(userIDs) {
		badRequest(c, fmt.Sprintf("got %d files but %d user_ids", len(headers), len(userIDs)))
		return
	}

	files := make([]service.BatchFile, 0, len(headers))
	for i, fh := range headers {
		data, err := s.readPDF(fh)
		if err != nil {
			s.writeUploadError(c, err)
			return
		}
		files = append(files, service.BatchFile{UserID: userIDs[i], Filename: fh.Filename, Data: data})
	}

	job, err := s.deps.Batch.Submit(c.Request.Context(), files)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "batch": job})
}

func (s *Server) handleGetBatch(c *gin.Context) {
	if s.deps.Batch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "record intake is not configured"})
		return
	}
	job, err := s.deps.Batch.Get(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

var errFileTooLarge = errors.New("file too large")

// readPDF enforces the extension and size limit before reading the part into memory.
func (s *Server) readPDF(fh *multipart.FileHeader) ([]byte, error) {
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
		return nil, domain.NewValidationError("file", "only PDF files are accepted", fh.Filename)
	}
	if fh.Size > s.cfg.Intake.MaxUploadBytes {
		return nil, fmt.Errorf("%s: %w", fh.Filename, errFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, s.cfg.Intake.MaxUploadBytes+1))
}

func (s *Server) writeUploadError(c *gin.Context, err error) {
	if errors.Is(err, errFileTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds %d bytes", s.cfg.Intake.MaxUploadBytes),
		})
		return
	}
	s.writeError(c, err)
}

func (s *Server) handleCreateTrial(c *gin.Context) {
	var trial domain.Trial
	if err := c.ShouldBindJSON(&trial); err != nil {
		badRequest(c, "request body must be a trial JSON object")
		return
	}
	created, err := s.deps.Trials.Register(c.Request.Context(), &trial)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "trial": created})
}

func (s *Server) handleListTrials(c *gin.Context) {
	trials, err := s.deps.Trials.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(trials), "trials": trials})
}

// handleMatchTrial scores the stored patient pool against a trial registered after intake.
func (s *Server) handleMatchTrial(c *gin.Context) {
	if s.deps.Intake == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "record intake is not configured"})
		return
	}
	result, err := s.deps.Intake.MatchTrial(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": result})
}

type agreementRequest struct {
	Text          string `json:"text"`
	WalletAddress string `json:"wallet_address"`
}

func (s *Server) handleAgreement(c *gin.Context) {
	var req agreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be a JSON object")
		return
	}
	agreement, err := s.deps.Consent.Agreement(req.Text, req.WalletAddress)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agreement)
}

func (s *Server) handleConfirmConsent(c *gin.Context) {
	var req service.ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must be a JSON object")
		return
	}
	rec, err := s.deps.Consent.Confirm(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "consent": rec})
}

func (s *Server) handleExportLedger(c *gin.Context) {
	if s.deps.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "consent ledger is not configured"})
		return
	}
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	if err := s.deps.Ledger.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Consent ledger export failed")
	}
}

func (s *Server) handleListMatches(c *gin.Context) {
	matches, err := s.deps.Stores.Matches.ListByUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", domain.ErrDataAccess, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(matches), "matches": matches})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	profile, err := s.deps.Stores.Profiles.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "profile": profile})
}

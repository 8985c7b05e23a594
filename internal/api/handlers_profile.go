package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"trade-dashboard/internal/auth"
	"trade-dashboard/internal/database"
	"trade-dashboard/internal/profile"
	"trade-dashboard/internal/storage"
)

var errFileTooLarge = errors.New("file too large")

// writeProfileError maps profile and storage errors to HTTP statuses
func writeProfileError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, profile.ErrBrokerPasswordRequired):
		errorResponse(c, http.StatusBadRequest, "BROKER_PASSWORD_REQUIRED", err.Error())
	case errors.Is(err, profile.ErrKYCFilesRequired):
		errorResponse(c, http.StatusBadRequest, "KYC_FILES_REQUIRED", err.Error())
	case errors.Is(err, profile.ErrInvalidFile):
		errorResponse(c, http.StatusUnsupportedMediaType, "INVALID_FILE", err.Error())
	case errors.Is(err, profile.ErrInvalidStatus):
		errorResponse(c, http.StatusBadRequest, "INVALID_STATUS", err.Error())
	case errors.Is(err, errFileTooLarge):
		errorResponse(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, database.ErrNotFound), errors.Is(err, storage.ErrObjectNotFound):
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "not found")
	default:
		internalError(c, err, fallback)
	}
}

// formUpload opens a multipart file field. A missing field yields nil.
// The caller closes the returned file.
func (s *Server) formUpload(c *gin.Context, field string) (*profile.Upload, multipart.File, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if header.Size > s.maxUpload {
		return nil, nil, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, field, s.maxUpload)
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return &profile.Upload{
		Body:        f,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	}, f, nil
}

// handleGetProfile returns the caller's profile
// GET /api/profile
func (s *Server) handleGetProfile(c *gin.Context) {
	v, err := s.deps.Profiles.Get(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		writeProfileError(c, err, "failed to load profile")
		return
	}
	c.JSON(http.StatusOK, v)
}

// handleUpdateProfile saves the caller's profile
// PUT /api/profile
func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req profile.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	v, err := s.deps.Profiles.Update(c.Request.Context(), auth.GetUserID(c), req)
	if err != nil {
		writeProfileError(c, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, v)
}

// handleUploadAvatar replaces the caller's avatar
// POST /api/profile/avatar (multipart "file")
func (s *Server) handleUploadAvatar(c *gin.Context) {
	up, f, err := s.formUpload(c, "file")
	if err != nil {
		writeProfileError(c, err, "failed to read upload")
		return
	}
	if up == nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "file is required")
		return
	}
	defer f.Close()

	url, err := s.deps.Profiles.UploadAvatar(c.Request.Context(), auth.GetUserID(c), *up)
	if err != nil {
		writeProfileError(c, err, "failed to upload avatar")
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar_url": url})
}

// handleGetKYC returns the caller's verification state
// GET /api/kyc
func (s *Server) handleGetKYC(c *gin.Context) {
	v, err := s.deps.Profiles.KYC(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		writeProfileError(c, err, "failed to load kyc")
		return
	}
	c.JSON(http.StatusOK, v)
}

// handleSubmitKYC uploads both document sides
// POST /api/kyc (multipart "front", "back")
func (s *Server) handleSubmitKYC(c *gin.Context) {
	front, ff, err := s.formUpload(c, "front")
	if err != nil {
		writeProfileError(c, err, "failed to read upload")
		return
	}
	if ff != nil {
		defer ff.Close()
	}
	back, bf, err := s.formUpload(c, "back")
	if err != nil {
		writeProfileError(c, err, "failed to read upload")
		return
	}
	if bf != nil {
		defer bf.Close()
	}

	v, err := s.deps.Profiles.SubmitKYC(c.Request.Context(), auth.GetUserID(c), front, back)
	if err != nil {
		writeProfileError(c, err, "failed to submit kyc")
		return
	}
	c.JSON(http.StatusOK, v)
}

// handleGetFile streams a stored blob to its owner or an admin
// GET /api/files/*key
func (s *Server) handleGetFile(c *gin.Context) {
	if s.deps.Blobs == nil {
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "not found")
		return
	}
	key := strings.TrimPrefix(path.Clean("/"+c.Param("key")), "/")
	owner := storage.Owner(key)
	if owner == "" || (owner != auth.GetUserID(c) && !auth.IsAdmin(c)) {
		errorResponse(c, http.StatusForbidden, auth.ErrForbidden.Code, "access forbidden")
		return
	}

	obj, err := s.deps.Blobs.Get(c.Request.Context(), key)
	if err != nil {
		writeProfileError(c, err, "failed to read file")
		return
	}
	defer obj.Body.Close()

	c.Header("Cache-Control", "private, no-store")
	if obj.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	c.Header("Content-Type", obj.ContentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, obj.Body); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("File stream interrupted")
	}
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trade-dashboard/internal/admin"
	"trade-dashboard/internal/analytics"
	"trade-dashboard/internal/auth"
	"trade-dashboard/internal/database"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// writeAdminError maps admin, auth and database errors to HTTP statuses
func writeAdminError(c *gin.Context, err error, fallback string) {
	var verr admin.ValidationError
	var authErr auth.AuthError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "field": verr.Field, "message": verr.Error()})
	case errors.As(err, &authErr):
		errorResponse(c, auth.StatusFor(err), authErr.Code, authErr.Message)
	case errors.Is(err, admin.ErrUnknownUser), errors.Is(err, database.ErrNotFound):
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		internalError(c, err, fallback)
	}
}

// readRows reads an import payload: a multipart "file" or a raw body holding
// an .xlsx workbook, or otherwise a JSON array of records.
func (s *Server) readRows(c *gin.Context) ([]analytics.RawTrade, error) {
	ct := c.ContentType()
	switch {
	case strings.HasPrefix(ct, "multipart/"):
		header, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("file is required: %w", err)
		}
		if header.Size > s.maxUpload {
			return nil, fmt.Errorf("%w: file exceeds %d bytes", errFileTooLarge, s.maxUpload)
		}
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return admin.ReadSheet(f)
	case ct == xlsxContentType:
		return admin.ReadSheet(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload))
	default:
		var rows []analytics.RawTrade
		if err := c.ShouldBindJSON(&rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
}

func rowsError(c *gin.Context, err error) {
	if errors.Is(err, errFileTooLarge) {
		errorResponse(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
		return
	}
	errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

// handleListClients lists every client with trade aggregates
// GET /api/admin/clients
func (s *Server) handleListClients(c *gin.Context) {
	clients, err := s.deps.Admin.ListClients(c.Request.Context())
	if err != nil {
		writeAdminError(c, err, "failed to list clients")
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients, "count": len(clients)})
}

// handleCreateUser provisions a client account
// POST /api/admin/users
func (s *Server) handleCreateUser(c *gin.Context) {
	var req admin.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	user, err := s.deps.Admin.CreateUser(c.Request.Context(), req)
	if err != nil {
		writeAdminError(c, err, "failed to create user")
		return
	}
	c.JSON(http.StatusCreated, user)
}

// handleSetSuspended blocks or unblocks a client
// PUT /api/admin/users/:id/suspend
func (s *Server) handleSetSuspended(c *gin.Context) {
	var req struct {
		Suspended *bool `json:"suspended" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	userID := c.Param("id")
	if userID == auth.GetUserID(c) {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot change your own suspension")
		return
	}
	if err := s.deps.Admin.SetSuspended(c.Request.Context(), userID, *req.Suspended); err != nil {
		writeAdminError(c, err, "failed to update suspension")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "suspended": *req.Suspended})
}

// handleImportProfiles merges a profile spreadsheet into existing profiles
// POST /api/admin/profiles/import
func (s *Server) handleImportProfiles(c *gin.Context) {
	rows, err := s.readRows(c)
	if err != nil {
		rowsError(c, err)
		return
	}
	report, err := s.deps.Admin.ImportProfiles(c.Request.Context(), rows)
	if err != nil {
		writeAdminError(c, err, "failed to import profiles")
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleImportTrades appends a ledger to one client, or to the clients named by each row
// POST /api/admin/trades/import?user_id=&source=ledger|consolidated
func (s *Server) handleImportTrades(c *gin.Context) {
	userID := c.Query("user_id")
	source := analytics.Source(c.Query("source"))
	switch source {
	case "":
		source = analytics.SourceLedger
		if userID == "" {
			source = analytics.SourceConsolidated
		}
	case analytics.SourceLedger, analytics.SourceConsolidated:
	default:
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("unknown source %q", source))
		return
	}

	rows, err := s.readRows(c)
	if err != nil {
		rowsError(c, err)
		return
	}
	report, err := s.deps.Admin.ImportTrades(c.Request.Context(), source, userID, rows)
	if err != nil {
		writeAdminError(c, err, "failed to import trades")
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleAddManualTrade records one trade for a client
// POST /api/admin/trades
func (s *Server) handleAddManualTrade(c *gin.Context) {
	var req admin.ManualTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	trade, err := s.deps.Admin.AddManualTrade(c.Request.Context(), req)
	if err != nil {
		writeAdminError(c, err, "failed to add trade")
		return
	}
	c.JSON(http.StatusCreated, trade)
}

// handleUpdateTrade edits one trade of a client's ledger
// PUT /api/admin/trades/:user_id/:id
func (s *Server) handleUpdateTrade(c *gin.Context) {
	var req admin.ManualTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	trade, err := s.deps.Admin.UpdateTrade(c.Request.Context(), c.Param("user_id"), c.Param("id"), req)
	if err != nil {
		writeAdminError(c, err, "failed to update trade")
		return
	}
	c.JSON(http.StatusOK, trade)
}

// handleDeleteTrade removes one trade from a client's ledger
// DELETE /api/admin/trades/:user_id/:id
func (s *Server) handleDeleteTrade(c *gin.Context) {
	tradeID := c.Param("id")
	if err := s.deps.Admin.DeleteTrade(c.Request.Context(), c.Param("user_id"), tradeID); err != nil {
		writeAdminError(c, err, "failed to delete trade")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": tradeID})
}

// handleAdminGetKYC returns a client's verification state for review
// GET /api/admin/kyc/:user_id
func (s *Server) handleAdminGetKYC(c *gin.Context) {
	v, err := s.deps.Profiles.KYC(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeProfileError(c, err, "failed to load kyc")
		return
	}
	c.JSON(http.StatusOK, v)
}

// handleSetKYCStatus records the review outcome
// PUT /api/admin/kyc/:user_id
func (s *Server) handleSetKYCStatus(c *gin.Context) {
	var req struct {
		Status database.KYCStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	userID := c.Param("user_id")
	if err := s.deps.Profiles.SetKYCStatus(c.Request.Context(), userID, req.Status); err != nil {
		writeProfileError(c, err, "failed to update kyc status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": req.Status})
}

// Package service provides the application business logic for chat,
// moderation, and read state.
package service

import (
	"context"
	"strings"

	"commons/internal/middleware"
	"commons/internal/models"
	"commons/internal/observability"
	"commons/internal/repository"
)

// Moderated actions gated by CanAct.
const (
	ActionSend  = "send"
	ActionReact = "react"
)

// Denial reasons surfaced to the user. Denials are never silent.
const (
	ReasonBanned       = "you are banned"
	ReasonLocked       = "channel is locked"
	ReasonInsufficient = "insufficient permission"
)

// BanInput is the input for opening a ban record.
type BanInput struct {
	UserID    uint
	ChannelID *uint
	Reason    string
}

// ReportInput is the input for filing a report.
type ReportInput struct {
	MessageID      *uint
	ReportedUserID uint
	Reason         string
}

// ModerationService provides ban, lock, authorization, and report logic.
type ModerationService struct {
	banRepo     repository.BanRepository
	channelRepo repository.ChannelRepository
	userRepo    repository.UserRepository
	reportRepo  repository.ReportRepository
	messageRepo repository.MessageRepository
}

// NewModerationService returns a new ModerationService.
func NewModerationService(
	banRepo repository.BanRepository,
	channelRepo repository.ChannelRepository,
	userRepo repository.UserRepository,
	reportRepo repository.ReportRepository,
	messageRepo repository.MessageRepository,
) *ModerationService {
	return &ModerationService{
		banRepo:     banRepo,
		channelRepo: channelRepo,
		userRepo:    userRepo,
		reportRepo:  reportRepo,
		messageRepo: messageRepo,
	}
}

func (s *ModerationService) deny(action, reason string) error {
	observability.ModerationDenials.WithLabelValues(action, reason).Inc()
	return models.NewForbiddenError(reason)
}

// CanAct checks whether the session may perform the action in the channel.
// Evaluated server-side before any state mutation, so a denied action never
// partially applies. Returns nil when allowed, a forbidden error carrying the
// user-visible reason otherwise.
func (s *ModerationService) CanAct(ctx context.Context, sess middleware.Session, channelID uint, action string) error {
	banned, err := s.banRepo.IsBanned(ctx, sess.UserID, channelID)
	if err != nil {
		return err
	}
	if banned {
		return s.deny(action, ReasonBanned)
	}

	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if !ch.IsLocked || sess.IsAdmin() {
		return nil
	}

	authorized, err := s.channelRepo.IsAuthorized(ctx, channelID, sess.UserID)
	if err != nil {
		return err
	}
	if !authorized {
		return s.deny(action, ReasonLocked)
	}
	return nil
}

// BanUser opens a ban record. Admin-only. A nil ChannelID scopes the ban
// globally. Fails with a conflict if an open ban for the same scope exists.
func (s *ModerationService) BanUser(ctx context.Context, sess middleware.Session, in BanInput) (*models.BanRecord, error) {
	if !sess.IsAdmin() {
		return nil, s.denyErr()
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, models.NewValidationError("Ban reason is required")
	}
	if in.UserID == sess.UserID {
		return nil, models.NewValidationError("Cannot ban yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, in.UserID); err != nil {
		return nil, err
	}
	if in.ChannelID != nil {
		if _, err := s.channelRepo.GetByID(ctx, *in.ChannelID); err != nil {
			return nil, err
		}
	}

	ban := &models.BanRecord{
		UserID:    in.UserID,
		AdminID:   sess.UserID,
		Reason:    strings.TrimSpace(in.Reason),
		ChannelID: in.ChannelID,
	}
	if err := s.banRepo.Open(ctx, ban); err != nil {
		return nil, err
	}
	middleware.Logger.InfoContext(ctx, "user banned",
		"user_id", in.UserID, "admin_id", sess.UserID, "channel_id", in.ChannelID)
	return ban, nil
}

// UnbanUser closes an open ban record. Admin-only. The unban reason is
// optional. Re-banning afterwards opens a new record, history is retained.
func (s *ModerationService) UnbanUser(ctx context.Context, sess middleware.Session, banID uint, reason string) (*models.BanRecord, error) {
	if !sess.IsAdmin() {
		return nil, s.denyErr()
	}
	ban, err := s.banRepo.Close(ctx, banID, sess.UserID, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}
	middleware.Logger.InfoContext(ctx, "user unbanned",
		"user_id", ban.UserID, "admin_id", sess.UserID, "ban_id", banID)
	return ban, nil
}

// ListOpenBans returns currently open ban records. Admin-only.
func (s *ModerationService) ListOpenBans(ctx context.Context, sess middleware.Session, limit, offset int) ([]*models.BanRecord, error) {
	if !sess.IsAdmin() {
		return nil, s.denyErr()
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.banRepo.ListOpen(ctx, limit, offset)
}

// BanHistory returns all ban records for a user, open and closed. Admin-only.
func (s *ModerationService) BanHistory(ctx context.Context, sess middleware.Session, userID uint) ([]*models.BanRecord, error) {
	if !sess.IsAdmin() {
		return nil, s.denyErr()
	}
	return s.banRepo.History(ctx, userID)
}

// SetChannelLock flips the channel lock. Admin-only.
func (s *ModerationService) SetChannelLock(ctx context.Context, sess middleware.Session, channelID uint, locked bool) (*models.Channel, error) {
	if !sess.IsAdmin() {
		return nil, s.denyErr()
	}
	ch, err := s.channelRepo.SetLocked(ctx, channelID, sess.UserID, locked)
	if err != nil {
		return nil, err
	}
	middleware.Logger.InfoContext(ctx, "channel lock changed",
		"channel_id", channelID, "locked", locked, "admin_id", sess.UserID)
	return ch, nil
}

// AuthorizeUser adds a user to the channel's allowlist so they can act while
// the channel is locked. Admin-only and idempotent.
func (s *ModerationService) AuthorizeUser(ctx context.Context, sess middleware.Session, channelID, userID uint) error {
	if !sess.IsAdmin() {
		return s.denyErr()
	}
	if _, err := s.channelRepo.GetByID(ctx, channelID); err != nil {
		return err
	}
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.channelRepo.AuthorizeUser(ctx, channelID, userID, sess.UserID)
}

// RevokeUser removes a user from the channel's allowlist. Admin-only.
func (s *ModerationService) RevokeUser(ctx context.Context, sess middleware.Session, channelID, userID uint) error {
	if !sess.IsAdmin() {
		return s.denyErr()
	}
	return s.channelRepo.RevokeUser(ctx, channelID, userID)
}

// CreateReport files a report against a message or a user. Any authenticated
// user may file one.
func (s *ModerationService) CreateReport(ctx context.Context, sess middleware.Session, in ReportInput) (*models.Report, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, models.NewValidationError("Report reason is required")
	}

	reportedUserID := in.ReportedUserID
	if in.MessageID != nil {
		msg, err := s.messageRepo.GetByID(ctx, *in.MessageID)
		if err != nil {
			return nil, models.NewNotFoundError("Message", *in.MessageID)
		}
		reportedUserID = msg.AuthorID
	}
	if reportedUserID == 0 {
		return nil, models.NewValidationError("Report target is required")
	}
	if reportedUserID == sess.UserID {
		return nil, models.NewValidationError("Cannot report yourself")
	}

	report := &models.Report{
		MessageID:      in.MessageID,
		ReporterID:     sess.UserID,
		ReportedUserID: reportedUserID,
		Reason:         strings.TrimSpace(in.Reason),
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// SettleReport resolves or dismisses a pending report. Admin-only; a settled
// report cannot be settled again.
func (s *ModerationService) SettleReport(ctx context.Context, sess middleware.Session, reportID uint, status, notes string) (*models.Report, error) {
	if !sess.IsAdmin() {
		return nil, s.denyErr()
	}
	return s.reportRepo.Settle(ctx, reportID, sess.UserID, status, notes)
}

// ListReports returns reports filtered by status. Admin-only. An empty status
// returns all reports.
func (s *ModerationService) ListReports(ctx context.Context, sess middleware.Session, status string, limit, offset int) ([]*models.Report, error) {
	if !sess.IsAdmin() {
		return nil, s.denyErr()
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.reportRepo.ListByStatus(ctx, status, limit, offset)
}

func (s *ModerationService) denyErr() error {
	observability.ModerationDenials.WithLabelValues("admin", ReasonInsufficient).Inc()
	return models.NewForbiddenError(ReasonInsufficient)
}

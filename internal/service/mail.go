// Package service orchestrates the mapping core against the mail-store
// and submission collaborators: folder listings, reads, drafts, flag
// updates, and the best-effort bookkeeping flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zeegates/minig/internal/cache"
	"github.com/zeegates/minig/internal/identity"
	"github.com/zeegates/minig/internal/mapper"
	"github.com/zeegates/minig/internal/model"
	"github.com/zeegates/minig/internal/store"
	"github.com/zeegates/minig/internal/submission"
	"github.com/zeegates/minig/internal/wire"
)

// MailService exposes the mail operations the REST layer dispatches to.
// It holds no cross-request mutable state; every method works on data
// owned by the single call.
type MailService struct {
	store     store.Store
	cache     *cache.SummaryCache
	submitter submission.Submitter
	folders   model.FolderConfig

	// userEmail is the authenticated account address, the only sender
	// this instance ever transmits as.
	userEmail string
}

// New creates a MailService. The cache may be nil; listing then skips
// the local summary cache.
func New(
	st store.Store,
	c *cache.SummaryCache,
	sub submission.Submitter,
	folders model.FolderConfig,
	userEmail string,
) *MailService {
	return &MailService{
		store:     st,
		cache:     c,
		submitter: sub,
		folders:   folders,
		userEmail: userEmail,
	}
}

// FindMessagesByFolder returns one page of summary projections for the
// folder, newest first, and refreshes the local cache with the rows it
// produced. Cache failures are logged, never surfaced: the listing
// succeeded.
func (s *MailService) FindMessagesByFolder(ctx context.Context, folder string, page, pageSize int) (*model.MessageList, error) {
	raws, total, err := s.store.ListFolder(ctx, folder, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("listing folder %s: %w", folder, err)
	}

	summaries := make([]*model.MailMessage, 0, len(raws))
	for _, raw := range raws {
		summaries = append(summaries, mapper.Summary(raw))
	}

	if s.cache != nil {
		if err := s.cache.UpsertSummaries(ctx, summaries); err != nil {
			slog.Warn("caching folder summaries failed",
				"folder", folder,
				"error", err,
			)
		}
	}

	return &model.MessageList{
		MailList:   summaries,
		Page:       page,
		FullLength: total,
	}, nil
}

// FindMessage returns the full projection of one message.
func (s *MailService) FindMessage(ctx context.Context, id identity.ID) (*model.MailMessage, error) {
	raw, err := s.store.FetchRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapper.Full(raw), nil
}

// FindWireMessage returns the wire representation of one message, for
// callers that need the MIME tree itself (attachment download, draft
// update).
func (s *MailService) FindWireMessage(ctx context.Context, id identity.ID) (*wire.Message, error) {
	raw, err := s.store.FetchRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	return wire.Parse(raw.Folder, raw.Raw), nil
}

// ReadAttachment fetches the message named by the attachment coordinate
// and returns the matching part, or store.ErrNotFound when the message
// has no such attachment.
func (s *MailService) ReadAttachment(ctx context.Context, id identity.AttachmentID) (*wire.Attachment, error) {
	msg, err := s.FindWireMessage(ctx, id.ID)
	if err != nil {
		return nil, err
	}
	att, ok := msg.Attachment(id)
	if !ok {
		return nil, fmt.Errorf("attachment %s: %w", id.String(), store.ErrNotFound)
	}
	return att, nil
}

// DeleteMessage moves the message to the trash folder, or removes it
// permanently when it already lives in the trash. Deleting an already
// absent message is a no-op.
func (s *MailService) DeleteMessage(ctx context.Context, id identity.ID) error {
	var err error
	if id.Folder == s.folders.Trash {
		err = s.store.Delete(ctx, id)
	} else {
		err = s.store.Move(ctx, id, s.folders.Trash)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.evict(ctx, id)
	return nil
}

// DeleteMessages deletes a batch with per-item isolation: one failure
// is logged and the loop continues.
func (s *MailService) DeleteMessages(ctx context.Context, ids []identity.ID) {
	for _, id := range ids {
		if err := s.DeleteMessage(ctx, id); err != nil {
			slog.Info("deleting message failed",
				"id", id.String(),
				"error", err,
			)
		}
	}
}

// UpdateMessageFlags applies a partial flag update: only the tri-state
// fields that are non-nil on the incoming record change the stored
// message; nil means "leave unchanged". A record without a resolvable
// coordinate is a caller bug, not a store condition.
func (s *MailService) UpdateMessageFlags(ctx context.Context, source *model.MailMessage) error {
	id := source.CompositeID()
	if id.IsZero() {
		return fmt.Errorf("flag update without a message coordinate")
	}

	if err := s.store.UpdateFlags(ctx, id, mapper.FlagDelta(source)); err != nil {
		return err
	}

	s.refreshCachedFlags(ctx, id, source)
	return nil
}

// UpdateMessagesFlags applies a batch of flag updates with per-item
// isolation; the batch never aborts partway.
func (s *MailService) UpdateMessagesFlags(ctx context.Context, list *model.MessageList) {
	if list == nil {
		return
	}
	for _, m := range list.MailList {
		if err := s.UpdateMessageFlags(ctx, m); err != nil {
			slog.Info("updating message flags failed",
				"id", m.ID,
				"error", err,
			)
		}
	}
}

// MoveMessageToFolder moves the message and marks it read at its new
// coordinate.
func (s *MailService) MoveMessageToFolder(ctx context.Context, id identity.ID, folder string) error {
	if err := s.store.Move(ctx, id, folder); err != nil {
		return err
	}
	s.evict(ctx, id)

	moved := identity.New(folder, id.MessageID)
	return s.store.UpdateFlags(ctx, moved, store.FlagDelta{Seen: model.BoolPtr(true)})
}

// MoveMessagesToFolder moves a batch with per-item isolation.
func (s *MailService) MoveMessagesToFolder(ctx context.Context, ids []identity.ID, folder string) {
	for _, id := range ids {
		if err := s.MoveMessageToFolder(ctx, id, folder); err != nil {
			slog.Info("moving message failed",
				"id", id.String(),
				"folder", folder,
				"error", err,
			)
		}
	}
}

// CopyMessagesToFolder copies a batch into the folder, skipping blank
// coordinates, with per-item isolation.
func (s *MailService) CopyMessagesToFolder(ctx context.Context, ids []identity.ID, folder string) {
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if err := s.store.Copy(ctx, id, folder); err != nil {
			slog.Info("copying message failed",
				"id", id.String(),
				"folder", folder,
				"error", err,
			)
		}
	}
}

// CreateDraftMessage maps the record to a new wire message, copies the
// forwarded original's attachments when the record links one, persists
// it to the drafts folder marked read, and returns the stored
// projection.
func (s *MailService) CreateDraftMessage(ctx context.Context, m *model.MailMessage) (*model.MailMessage, error) {
	msg := mapper.ToWire(m)
	msg.SetFrom(s.userEmail)

	if m.ForwardedMessageID != "" {
		s.copyForwardedAttachments(ctx, m.ForwardedMessageID, msg)
	}

	return s.persistDraft(ctx, msg, s.folders.Draft)
}

// UpdateDraftMessage rewrites an existing draft from the domain record.
// The store cannot replace a message in place: the updated draft is
// persisted as a new message and the old one removed.
func (s *MailService) UpdateDraftMessage(ctx context.Context, m *model.MailMessage) (*model.MailMessage, error) {
	id := m.CompositeID()
	if id.IsZero() {
		return nil, fmt.Errorf("draft update without a message coordinate")
	}

	msg, err := s.FindWireMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	mapper.ApplyToWire(m, msg)
	msg.SetFrom(s.userEmail)

	// The store cannot tell two copies with the same Message-ID apart,
	// so the updated draft gets a fresh one before the old copy goes.
	msg.SetHeader("Message-Id", wire.GenerateMessageID())

	updated, err := s.persistDraft(ctx, msg, id.Folder)
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		slog.Warn("removing superseded draft failed",
			"id", id.String(),
			"error", err,
		)
	}
	s.evict(ctx, id)

	return updated, nil
}

// SendMessage maps the record to wire form, submits it as the
// authenticated user, files a copy into the sent folder, and performs
// the best-effort answered/forwarded bookkeeping on the originals.
func (s *MailService) SendMessage(ctx context.Context, m *model.MailMessage) error {
	msg := mapper.ToWire(m)

	var err error
	if msg.HasDispositionNotifications() {
		err = s.submitter.SubmitWithDSN(ctx, msg)
	} else {
		err = s.submitter.Submit(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("submitting message: %w", err)
	}

	raw, err := msg.Bytes()
	if err == nil {
		if _, err := s.store.Persist(ctx, raw, s.folders.Sent); err != nil {
			slog.Warn("filing sent copy failed",
				"folder", s.folders.Sent,
				"error", err,
			)
		}
	}

	s.FlagAsAnswered(ctx, m.InReplyTo)
	s.FlagAsForwarded(ctx, m.ForwardedMessageID)
	return nil
}

// FlagAsAnswered marks the message with the given Message-ID answered,
// wherever it lives. The flow is best-effort: an unresolvable id is a
// logged no-op because the triggering action already succeeded.
func (s *MailService) FlagAsAnswered(ctx context.Context, messageID string) {
	s.flagByMessageID(ctx, messageID, store.FlagDelta{Answered: model.BoolPtr(true)})
}

// FlagAsForwarded marks the message with the given Message-ID
// forwarded; best-effort like FlagAsAnswered.
func (s *MailService) FlagAsForwarded(ctx context.Context, messageID string) {
	s.flagByMessageID(ctx, messageID, store.FlagDelta{Forwarded: model.BoolPtr(true)})
}

func (s *MailService) flagByMessageID(ctx context.Context, messageID string, delta store.FlagDelta) {
	if strings.TrimSpace(messageID) == "" {
		return
	}

	id, err := s.store.FindByMessageID(ctx, messageID)
	if err != nil {
		slog.Debug("no message found for flag update",
			"message_id", messageID,
			"error", err,
		)
		return
	}

	if err := s.store.UpdateFlags(ctx, id, delta); err != nil {
		slog.Info("flag update by message id failed",
			"id", id.String(),
			"error", err,
		)
	}
}

// SearchCached finds previously listed summaries matching the query in
// the local cache.
func (s *MailService) SearchCached(ctx context.Context, query string, limit int) ([]*model.MailMessage, error) {
	if s.cache == nil {
		return nil, nil
	}
	return s.cache.Search(ctx, query, limit)
}

// persistDraft stores the wire message, marks it read, and returns its
// stored projection.
func (s *MailService) persistDraft(ctx context.Context, msg *wire.Message, folder string) (*model.MailMessage, error) {
	raw, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing draft: %w", err)
	}

	savedID, err := s.store.Persist(ctx, raw, folder)
	if err != nil {
		return nil, fmt.Errorf("saving draft to %s: %w", folder, err)
	}

	id := identity.New(folder, savedID)
	if err := s.store.UpdateFlags(ctx, id, store.FlagDelta{Seen: model.BoolPtr(true)}); err != nil {
		slog.Info("marking draft read failed",
			"id", id.String(),
			"error", err,
		)
	}

	return s.FindMessage(ctx, id)
}

// copyForwardedAttachments resolves the forwarded original and copies
// its attachments onto the draft. Best-effort: a vanished original is a
// logged no-op, and one unreadable part never stops the others.
func (s *MailService) copyForwardedAttachments(ctx context.Context, forwardedMessageID string, msg *wire.Message) {
	origID, err := s.store.FindByMessageID(ctx, forwardedMessageID)
	if err != nil {
		slog.Debug("forwarded original not found",
			"message_id", forwardedMessageID,
			"error", err,
		)
		return
	}

	orig, err := s.FindWireMessage(ctx, origID)
	if err != nil {
		slog.Info("reading forwarded original failed",
			"id", origID.String(),
			"error", err,
		)
		return
	}

	for _, att := range orig.Attachments() {
		msg.AddAttachment(*att)
	}
}

// refreshCachedFlags folds a partial flag update into the cached
// summary row, if one exists.
func (s *MailService) refreshCachedFlags(ctx context.Context, id identity.ID, source *model.MailMessage) {
	if s.cache == nil {
		return
	}

	target, err := s.cache.Get(ctx, id.String())
	if err != nil || target == nil {
		return
	}
	ApplyFlagUpdates(target, source)
	if err := s.cache.UpsertSummaries(ctx, []*model.MailMessage{target}); err != nil {
		slog.Debug("refreshing cached flags failed",
			"id", id.String(),
			"error", err,
		)
	}
}

// evict drops a summary row from the cache, best-effort.
func (s *MailService) evict(ctx context.Context, id identity.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Evict(ctx, id.String()); err != nil {
		slog.Debug("evicting cached summary failed",
			"id", id.String(),
			"error", err,
		)
	}
}

// ApplyFlagUpdates copies the non-nil tri-state flags of source onto
// target, leaving every nil flag untouched.
func ApplyFlagUpdates(target, source *model.MailMessage) {
	if source.Answered != nil {
		target.Answered = source.Answered
	}
	if source.Read != nil {
		target.Read = source.Read
	}
	if source.Starred != nil {
		target.Starred = source.Starred
	}
	if source.Forwarded != nil {
		target.Forwarded = source.Forwarded
	}
	if source.MDNSent != nil {
		target.MDNSent = source.MDNSent
	}
}

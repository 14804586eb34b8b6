package formsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/formrelay/internal/domain"
	"github.com/phrazzld/formrelay/internal/forms"
	"github.com/phrazzld/formrelay/internal/store"
)

// Result describes the external form after a sync.
type Result struct {
	ExternalID string
	URL        string
	Warnings   []string
	// Created is true when this call made the form.
	Created bool
	// Operations is the number of structural changes applied.
	Operations int
}

// Syncer reconciles a conversation's external form with a blueprint. It
// must not run concurrently for the same conversation; the task worker
// serializes calls.
type Syncer struct {
	records store.ExternalRecordStore
	logger  *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(records store.ExternalRecordStore, logger *slog.Logger) (*Syncer, error) {
	if records == nil {
		return nil, errors.New("records cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Syncer{records: records, logger: logger.With("component", "formsync")}, nil
}

// Sync creates or updates the conversation's form so it matches bp.
// Errors carry a domain category; Sync itself never retries.
func (s *Syncer) Sync(
	ctx context.Context,
	conversationID uuid.UUID,
	bp *domain.Blueprint,
	client forms.Client,
) (*Result, error) {
	log := s.logger.With("conversation_id", conversationID)
	desired, warnings := Plan(bp, log)

	record, err := s.records.GetByConversation(ctx, conversationID)
	switch {
	case errors.Is(err, store.ErrExternalRecordNotFound):
		return s.create(ctx, log, conversationID, desired, warnings, client)
	case err != nil:
		return nil, domain.NewTransientError("load external record", err)
	}
	return s.update(ctx, log, record, desired, warnings, client)
}

func (s *Syncer) create(
	ctx context.Context,
	log *slog.Logger,
	conversationID uuid.UUID,
	desired Desired,
	warnings []string,
	client forms.Client,
) (*Result, error) {
	externalID, err := client.Create(ctx, desired.Title, desired.Description)
	if err != nil {
		return nil, fmt.Errorf("create form: %w", err)
	}

	blank := &forms.Form{ExternalID: externalID, Title: desired.Title, Description: desired.Description}
	ops := Diff(blank, desired)
	if len(ops) > 0 {
		if err := client.ApplyOperations(ctx, externalID, ops); err != nil {
			return nil, fmt.Errorf("populate form %s: %w", externalID, err)
		}
	}

	created, err := client.Read(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("read form %s: %w", externalID, err)
	}

	record, err := domain.NewExternalRecord(conversationID, externalID, created.URL)
	if err != nil {
		return nil, domain.NewFatalError("build external record", err)
	}
	err = s.records.Create(ctx, record)
	if errors.Is(err, store.ErrExternalRecordExists) {
		// Another sync for this conversation won; its form is the one to keep.
		log.WarnContext(ctx, "lost external record race, updating winner's form",
			"orphaned_external_id", externalID)
		winner, getErr := s.records.GetByConversation(ctx, conversationID)
		if getErr != nil {
			return nil, domain.NewTransientError("load winning external record", getErr)
		}
		return s.update(ctx, log, winner, desired, warnings, client)
	}
	if err != nil {
		return nil, domain.NewTransientError("save external record", err)
	}

	log.InfoContext(ctx, "external form created",
		"external_id", externalID,
		"operations", len(ops),
		"warnings", len(warnings))
	return &Result{
		ExternalID: externalID,
		URL:        created.URL,
		Warnings:   warnings,
		Created:    true,
		Operations: len(ops),
	}, nil
}

func (s *Syncer) update(
	ctx context.Context,
	log *slog.Logger,
	record *domain.ExternalRecord,
	desired Desired,
	warnings []string,
	client forms.Client,
) (*Result, error) {
	current, err := client.Read(ctx, record.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("read form %s: %w", record.ExternalID, err)
	}

	ops := Diff(current, desired)
	if len(ops) > 0 {
		if err := client.ApplyOperations(ctx, record.ExternalID, ops); err != nil {
			return nil, fmt.Errorf("update form %s: %w", record.ExternalID, err)
		}
	}

	url := current.URL
	if url == "" {
		url = record.AccessURL
	}
	if err := s.records.Touch(ctx, record.ConversationID, url); err != nil {
		return nil, domain.NewTransientError("touch external record", err)
	}

	log.InfoContext(ctx, "external form synced",
		"external_id", record.ExternalID,
		"operations", len(ops),
		"warnings", len(warnings))
	return &Result{
		ExternalID: record.ExternalID,
		URL:        url,
		Warnings:   warnings,
		Operations: len(ops),
	}, nil
}

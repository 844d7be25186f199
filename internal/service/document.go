package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ecoquote/internal/model"
	"ecoquote/internal/pdf"
	"ecoquote/internal/storage"

	"go.uber.org/zap"
)

// Document is a rendered quotation
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

// RenderPDF renders the current state of a quotation. Renderings are cached
// per document version when artifact storage is configured.
func (s *QuotationService) RenderPDF(ctx context.Context, quotationID string) (*Document, error) {
	row, err := s.store.GetQuotationByID(ctx, quotationID)
	if err != nil {
		return nil, notFound(err, "quotation")
	}

	snapshot := dbQuotationToModel(row)
	doc := &Document{
		Filename:    fmt.Sprintf("quotation-%s.pdf", row.ID),
		ContentType: "application/pdf",
	}

	version, err := documentVersion(snapshot)
	if err != nil {
		return nil, err
	}
	key := storage.QuotationPDFKey(row.ID, version)
	if s.artifacts != nil {
		if content, err := s.readArtifact(ctx, key); err == nil {
			doc.Content = content
			return doc, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("Failed to read cached document", zap.String("quotation_id", row.ID), zap.Error(err))
		}
	}

	content, err := pdf.Render(s.cfg.CompanyName, snapshot, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to render quotation: %w", err)
	}
	doc.Content = content

	if s.artifacts != nil {
		// Older versions are never served again
		if err := s.artifacts.DeletePrefix(ctx, storage.QuotationPDFPrefix(row.ID)); err != nil {
			s.log.Warn("Failed to prune cached documents", zap.String("quotation_id", row.ID), zap.Error(err))
		}
		if err := s.artifacts.Put(ctx, key, bytes.NewReader(content)); err != nil {
			s.log.Warn("Failed to cache document", zap.String("quotation_id", row.ID), zap.Error(err))
		}
	}
	return doc, nil
}

// documentVersion identifies everything a rendering shows, including the
// catalog entries joined into the permit requests
func documentVersion(q *model.Quotation) (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("failed to encode document version: %w", err)
	}
	return string(data), nil
}

func (s *QuotationService) readArtifact(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.artifacts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

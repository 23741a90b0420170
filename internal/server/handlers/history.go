package handlers

import (
	"context"

	"github.com/maruel/solardb/internal/server/dto"
)

// HistoryHandler serves the change log of the data directory.
type HistoryHandler struct {
	Svc *Services
}

// History lists recent changes, optionally restricted to one table.
func (h *HistoryHandler) History(ctx context.Context, req *dto.HistoryRequest) (*dto.HistoryResponse, error) {
	if h.Svc.History == nil {
		return nil, dto.NotImplemented("history")
	}
	path := ""
	if req.Table != "" {
		if _, err := h.Svc.Store.Table(req.Table); err != nil {
			return nil, dto.TableNotFound(req.Table)
		}
		files := h.Svc.files([]string{req.Table})
		if len(files) == 0 {
			return &dto.HistoryResponse{Commits: []dto.Commit{}}, nil
		}
		path = files[0]
	}
	commits, err := h.Svc.History.Log(ctx, path, req.Limit)
	if err != nil {
		return nil, dto.InternalWithError("failed to read history", err)
	}
	out := &dto.HistoryResponse{Commits: make([]dto.Commit, 0, len(commits))}
	for _, c := range commits {
		out.Commits = append(out.Commits, dto.Commit{
			Hash:    c.Hash,
			Message: c.Message,
			Author:  c.Author,
			Date:    c.AuthorDate,
			Files:   c.Files,
		})
	}
	return out, nil
}

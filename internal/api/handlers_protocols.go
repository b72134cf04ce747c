package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dgallion1/protoseg/internal/export"
	"github.com/dgallion1/protoseg/internal/protocol"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetProtocol(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadProtocol(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleExportProtocol(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadProtocol(w, r)
	if !ok {
		return
	}
	data, err := export.XLSX(doc)
	if err != nil {
		s.log.Error("export failed", "doc_id", doc.DocID, "error", err)
		jsonError(w, "failed to build workbook", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, doc.DocID))
	w.Write(data)
}

func (s *Server) handleDeleteProtocol(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	err := s.orchestrator.Store().Delete(r.Context(), docID)
	if errors.Is(err, protocol.ErrNotFound) {
		jsonError(w, "protocol not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("delete failed", "doc_id", docID, "error", err)
		jsonError(w, "failed to delete protocol: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("protocol deleted", "doc_id", docID)
	writeJSON(w, http.StatusOK, map[string]any{"doc_id": docID, "deleted": true})
}

func (s *Server) loadProtocol(w http.ResponseWriter, r *http.Request) (*protocol.Document, bool) {
	docID := chi.URLParam(r, "docID")
	doc, err := s.orchestrator.Store().Get(r.Context(), docID)
	if errors.Is(err, protocol.ErrNotFound) {
		jsonError(w, "protocol not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.log.Error("load protocol failed", "doc_id", docID, "error", err)
		jsonError(w, "failed to load protocol: "+err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return doc, true
}

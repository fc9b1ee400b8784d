package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/importer"
	"trade-journal/internal/models"
)

// maxImageUpload bounds a chart image upload, multipart overhead included.
const maxImageUpload = 10<<20 + 1<<16

// session resolves the caller's journal session, rendering the error when
// it cannot be opened.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*userSession, bool) {
	sess, err := s.sessions.Get(r.Context(), userFrom(r.Context()).UID)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, sess.Store.State())
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	trades := sess.Store.Trades()
	if sym := strings.TrimSpace(r.URL.Query().Get("symbol")); sym != "" {
		filtered := trades[:0:0]
		for _, t := range trades {
			if strings.EqualFold(t.Trade.Symbol, sym) {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"version": sess.Store.Version(),
		"trades":  trades,
	})
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	t, found := sess.Store.Find(chi.URLParam(r, "tradeID"))
	if !found {
		s.writeError(w, r, jerrors.ErrDocumentNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

type addTradesRequest struct {
	Trades []models.TradeDetails `json:"trades"`
}

func (s *Server) handleAddTrades(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req addTradesRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	if len(req.Trades) == 0 {
		s.badRequest(w, r, "no trades in request")
		return
	}

	if err := sess.Mutator.AddTrades(r.Context(), req.Trades); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]int{"submitted": len(req.Trades)})
}

func (s *Server) handleUpdateTrade(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var trade models.Trade
	if err := render.DecodeJSON(r.Body, &trade); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}
	trade = trade.WithID(chi.URLParam(r, "tradeID"))

	if err := sess.Mutator.UpdateTrade(r.Context(), trade); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Mutator.DeleteTrade(r.Context(), chi.URLParam(r, "tradeID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleAttachImage accepts a multipart upload with an "image" file and
// optional "timeframe" and "description" fields.
func (s *Server) handleAttachImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageUpload)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		s.badRequest(w, r, "invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("image")
	if err != nil {
		s.badRequest(w, r, "missing image file")
		return
	}
	defer file.Close()

	// Sniff the first bytes rather than trusting the client's header
	head := make([]byte, 512)
	n, _ := file.Read(head)
	contentType := http.DetectContentType(head[:n])
	if !strings.HasPrefix(contentType, "image/") {
		s.badRequest(w, r, "please upload an image file")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		s.writeError(w, r, err)
		return
	}

	img, err := sess.Mutator.AttachImage(r.Context(), chi.URLParam(r, "tradeID"), hdr.Filename, file,
		contentType, r.FormValue("timeframe"), r.FormValue("description"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, img)
}

func (s *Server) handleDetachImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	url := r.URL.Query().Get("url")
	if url == "" {
		s.badRequest(w, r, "url is required")
		return
	}
	if err := sess.Mutator.DetachImage(r.Context(), chi.URLParam(r, "tradeID"), url); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleImage serves an attached image through the local cache. Only images
// attached to the caller's own trades are served.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if s.cache == nil {
		s.writeError(w, r, jerrors.ErrObjectNotFound)
		return
	}

	url := r.URL.Query().Get("url")
	if !ownsImage(sess.Store.Trades(), url) {
		s.writeError(w, r, jerrors.ErrObjectNotFound)
		return
	}

	entry, err := s.cache.Fetch(r.Context(), url)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(entry.Data)
}

func ownsImage(trades []models.Trade, url string) bool {
	if url == "" {
		return false
	}
	for _, t := range trades {
		for _, img := range t.Images {
			if img.URL == url {
				return true
			}
		}
	}
	return false
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trades.csv"`)
	if err := importer.WriteCSV(w, sess.Store.Details()); err != nil {
		s.log.Error().Err(err).Msg("Failed to write csv export")
	}
}

package server

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/render"

	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/importer"
	"trade-journal/internal/models"
)

// importResponse lists parsed trades. Added is set when the request asked
// for them to be written with ?commit=true.
type importResponse struct {
	Trades []models.TradeDetails `json:"trades"`
	Added  int                   `json:"added"`
}

// handleImportCSV reads a CSV file from the multipart "file" field or, for
// any other content type, from the raw body.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, importer.MaxUploadSize)

	var src io.Reader = r.Body
	if f, _, err := r.FormFile("file"); err == nil {
		defer f.Close()
		src = f
	}

	s.runImport(w, r, func(ctx context.Context) ([]models.TradeDetails, error) {
		details, err := importer.ReadCSV(src)
		if err != nil {
			return nil, jerrors.NewValidationError("file", "", err.Error())
		}
		if err := importer.Validate(nil, details); err != nil {
			return nil, err
		}
		return details, nil
	})
}

// handleImportScreenshot sends the multipart "image" field to the parsing
// service.
func (s *Server) handleImportScreenshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageUpload)
	f, hdr, err := r.FormFile("image")
	if err != nil {
		s.badRequest(w, r, "missing image file")
		return
	}
	defer f.Close()

	s.runImport(w, r, func(ctx context.Context) ([]models.TradeDetails, error) {
		if s.importer == nil {
			return nil, jerrors.NewImportError("screenshot", 0, "import service url is not configured", nil)
		}
		return s.importer.ParseImage(ctx, hdr.Filename, f)
	})
}

type importTextRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleImportText(w http.ResponseWriter, r *http.Request) {
	var req importTextRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.badRequest(w, r, "invalid request body")
		return
	}

	s.runImport(w, r, func(ctx context.Context) ([]models.TradeDetails, error) {
		if s.importer == nil {
			return nil, jerrors.NewImportError("text", 0, "import service url is not configured", nil)
		}
		return s.importer.ParseText(ctx, req.Text)
	})
}

// runImport parses behind the read-only gate and, with ?commit=true, adds
// the parsed trades to the caller's journal.
func (s *Server) runImport(w http.ResponseWriter, r *http.Request, parse func(context.Context) ([]models.TradeDetails, error)) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	uid := userFrom(r.Context()).UID

	details, err := importer.Guarded(r.Context(), s.access, s.audit, uid, parse)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if details == nil {
		details = []models.TradeDetails{}
	}
	resp := importResponse{Trades: details}
	if r.URL.Query().Get("commit") == "true" && len(details) > 0 {
		if err := sess.Mutator.AddTrades(r.Context(), details); err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Added = len(details)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

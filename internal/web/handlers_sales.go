package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/saleimport/internal/core"
	"github.com/JonMunkholm/saleimport/internal/sheet"
	"github.com/JonMunkholm/saleimport/internal/store"
	"github.com/google/uuid"
)

// createSaleRequest is the body of POST /api/sales. Date accepts the same
// formats as the import files and defaults to now.
type createSaleRequest struct {
	CustomerID uuid.UUID        `json:"customerId"`
	Date       string           `json:"date,omitempty"`
	Items      []store.SaleItem `json:"items"`
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	customer, err := uuidQuery(r, "customer")
	if err != nil {
		respondError(w, r, err)
		return
	}
	run, err := uuidQuery(r, "import")
	if err != nil {
		respondError(w, r, err)
		return
	}

	sales, err := s.service.ListSales(r.Context(), store.SaleFilter{
		CustomerID:  customer,
		ImportRunID: run,
		Page:        parsePage(r),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sale, err := s.service.GetSale(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var date time.Time
	if req.Date != "" {
		d, ok := sheet.ParseDate(req.Date)
		if !ok {
			respondError(w, r, fmt.Errorf("%w: date %q is not a recognized date", core.ErrInvalidInput, req.Date))
			return
		}
		date = d
	}

	sale, err := s.service.CreateSale(r.Context(), req.CustomerID, req.Items, date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.service.DeleteSale(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

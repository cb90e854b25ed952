package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"restaurantDelivery/models"
	"restaurantDelivery/repository"
)

type catalogResponse struct {
	Items []*models.CatalogItem `json:"items"`
	// Stale is set when the store was unreachable and the last good list is served.
	Stale bool `json:"stale,omitempty"`
}

func (s *Server) listCatalog(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageArgs(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items, err := s.deps.Catalog.List(r.Context(), limit, offset)
	if err != nil {
		if errors.Is(err, repository.ErrPersistenceUnavailable) && limit == 0 && offset == 0 {
			s.catalogMu.Lock()
			last, ok := s.catalogLast, s.catalogOK
			s.catalogMu.Unlock()
			if ok {
				s.log(r).Warn("catalog store unavailable, serving last known list", zap.Error(err))
				writeJSON(w, http.StatusOK, catalogResponse{Items: last, Stale: true})
				return
			}
		}
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*models.CatalogItem{}
	}
	if limit == 0 && offset == 0 {
		s.catalogMu.Lock()
		s.catalogLast, s.catalogOK = items, true
		s.catalogMu.Unlock()
	}
	writeJSON(w, http.StatusOK, catalogResponse{Items: items})
}

func (s *Server) getCatalogItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.deps.Catalog.GetByID(r.Context(), models.CatalogItemID(chi.URLParam(r, "id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if it == nil {
		s.fail(w, r, repository.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

type upsertCatalogRequest struct {
	Name  string `json:"name" validate:"required"`
	Price int64  `json:"price" validate:"gte=0"`
	Stock int    `json:"stock" validate:"gte=0"`
}

func (s *Server) upsertCatalogItem(w http.ResponseWriter, r *http.Request) {
	var req upsertCatalogRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	it, err := s.deps.Catalog.Upsert(r.Context(), &models.CatalogItem{
		ID:    models.CatalogItemID(chi.URLParam(r, "id")),
		Name:  req.Name,
		Price: req.Price,
		Stock: req.Stock,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

type adjustStockRequest struct {
	Delta int    `json:"delta" validate:"required"`
	Kind  string `json:"kind" validate:"omitempty,oneof=restock adjustment"`
	Note  string `json:"note" validate:"max=500"`
}

// adjustStock applies a manual stock movement and records it in the ledger.
func (s *Server) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := models.CatalogItemID(chi.URLParam(r, "id"))
	it, err := s.deps.Catalog.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.deps.Catalog.AppendTransaction(r.Context(), &models.InventoryTransaction{
		CatalogItemID: id,
		Kind:          models.InventoryKind(req.Kind),
		Delta:         req.Delta,
		Note:          req.Note,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": it, "transaction": rec})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Catalog.ListTransactions(r.Context(), models.CatalogItemID(chi.URLParam(r, "id")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.InventoryTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": recs})
}

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"saleregister/backend/internal/commit"
	"saleregister/backend/internal/domain"
	"saleregister/backend/internal/session"
	"saleregister/backend/internal/store"
)

// Sessions hands out the per-terminal sale sessions.
type Sessions interface {
	Open(terminalID string, cashierRef string) (*session.Session, error)
	Close(terminalID string, cashierRef string) error
}

type API struct {
	sessions      Sessions
	catalog       session.Catalog
	sales         store.SaleReader
	auth          *AuthManager
	allowedOrigin string
	logger        *slog.Logger
	metrics       http.Handler
}

func New(sessions Sessions, catalog session.Catalog, sales store.SaleReader, auth *AuthManager, allowedOrigin string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		sessions:      sessions,
		catalog:       catalog,
		sales:         sales,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		logger:        logger,
	}
}

// WithMetrics exposes h on GET /metrics.
func (a *API) WithMetrics(h http.Handler) *API {
	a.metrics = h
	return a
}

type addLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	PaymentMethod   string          `json:"payment_method"`
	CustomerID      *string         `json:"customer_id,omitempty"`
}

type saleResponse struct {
	Sale  domain.Sale       `json:"sale"`
	Items []domain.SaleItem `json:"items"`
}

type errorResponse struct {
	ErrorKind domain.ErrorKind `json:"error_kind"`
	Detail    string           `json:"detail"`
	ProductID string           `json:"product_id,omitempty"`
	InvoiceID string           `json:"invoice_id,omitempty"`
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Get("/products", a.handleProducts)
		r.Get("/sales/{invoice}", a.handleSale)

		r.Route("/terminals/{terminal}", func(r chi.Router) {
			r.Delete("/", a.handleCloseTerminal)
			r.Get("/cart", a.handleCart)
			r.Post("/cart/lines", a.handleAddLine)
			r.Put("/cart/lines/{product}", a.handleSetQuantity)
			r.Delete("/cart/lines/{product}", a.handleRemoveLine)
			r.Post("/checkout", a.handleCheckout)
		})
	})

	return a.withMiddleware(r)
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		cashierRef, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withCashier(r.Context(), cashierRef)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.catalog.ListActiveProducts(r.Context())
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products": products,
	})
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	invoiceID := strings.TrimSpace(chi.URLParam(r, "invoice"))
	if invoiceID == "" {
		writeError(w, http.StatusBadRequest, errors.New("invoice id required"))
		return
	}

	sale, items, err := a.sales.FindSaleByInvoice(r.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, errors.New("sale not found"))
			return
		}
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saleResponse{Sale: sale, Items: items})
}

func (a *API) handleCloseTerminal(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Close(chi.URLParam(r, "terminal"), cashierFrom(r.Context())); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	s, ok := a.openSession(w, r)
	if !ok {
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("discount_percent"))
	if raw == "" {
		a.writeView(w, r, s)
		return
	}

	// Priced for display only; the discount is chosen at checkout.
	percent, err := decimal.NewFromString(raw)
	if err != nil {
		a.writeDomainError(w, r, domain.InvalidParameterf("discount percent %q is not a number", raw))
		return
	}
	view, err := s.Preview(percent)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleAddLine(w http.ResponseWriter, r *http.Request) {
	s, ok := a.openSession(w, r)
	if !ok {
		return
	}

	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.AddProduct(r.Context(), strings.TrimSpace(req.ProductID), req.Quantity); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	a.writeView(w, r, s)
}

func (a *API) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := a.openSession(w, r)
	if !ok {
		return
	}

	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.SetQuantity(chi.URLParam(r, "product"), req.Quantity); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	a.writeView(w, r, s)
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	s, ok := a.openSession(w, r)
	if !ok {
		return
	}
	s.RemoveLine(chi.URLParam(r, "product"))
	a.writeView(w, r, s)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := a.openSession(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := s.Checkout(r.Context(), req.DiscountPercent, domain.PaymentMethod(req.PaymentMethod), req.CustomerID)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) openSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := a.sessions.Open(chi.URLParam(r, "terminal"), cashierFrom(r.Context()))
	if err != nil {
		a.writeDomainError(w, r, err)
		return nil, false
	}
	return s, true
}

func (a *API) writeView(w http.ResponseWriter, r *http.Request, s *session.Session) {
	view, err := s.View()
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidParameter:
		return http.StatusBadRequest
	case domain.KindInsufficientStock:
		return http.StatusConflict
	case domain.KindDuplicateInvoice, domain.KindStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders err as {error_kind, detail, product_id?}. Server
// side kinds get a fixed detail; the cause is logged instead.
func (a *API) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	resp := errorResponse{ErrorKind: kind, Detail: err.Error()}

	if productID, ok := domain.StockErrorProduct(err); ok {
		resp.ProductID = productID
	}
	var commitErr *commit.Error
	if errors.As(err, &commitErr) {
		if resp.ProductID == "" {
			resp.ProductID = commitErr.ProductID
		}
		if commitErr.Inconsistent() {
			resp.InvoiceID = commitErr.InvoiceID
		}
	}

	if status >= 500 {
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error_kind", kind,
			"error", err,
		)
		switch kind {
		case domain.KindInconsistent:
			resp.Detail = "sale could not be reconciled, manual reconciliation required"
		default:
			resp.Detail = "storage temporarily unavailable, retry"
		}
	}
	if kind.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(startedAt),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry the cause.
	msg := err.Error()
	if status >= 500 {
		slog.Error("internal error", "status", status, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

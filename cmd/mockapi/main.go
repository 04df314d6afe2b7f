// mockapi is a throwaway in-memory stand-in for the marketplace REST API,
// good enough to run the gateway locally. It implements the collaborator
// contract the gateway consumes: JWT-based auth, product and transaction
// CRUD with action endpoints, notifications and company profiles.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/config"
	"github.com/circulo/surplus-gateway-go/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	user         domain.User
	passwordHash []byte
}

type store struct {
	mu            sync.Mutex
	accounts      map[string]*account // by login
	companies     map[int64]domain.Company
	products      map[int64]domain.Product
	transactions  map[int64]domain.Transaction
	notifications map[int64]domain.Notification
	nextID        int64
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

type server struct {
	store  *store
	secret []byte
	logger *zap.Logger
}

func main() {
	_ = config.LoadDotEnv(".env")

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "surplus-default-dev-secret-change-me"
	}
	port := 8081
	if v := os.Getenv("MOCKAPI_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	srv := &server{
		store:  seed(),
		secret: []byte(secret),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/authenticate", srv.authenticate)
	r.Post("/register", srv.register)

	r.Group(func(r chi.Router) {
		r.Use(srv.requireToken)
		r.Get("/account", srv.account)

		r.Get("/products", srv.listProducts)
		r.Post("/products", srv.createProduct)
		r.Patch("/products/{id}", srv.updateProduct)
		r.Delete("/products/{id}", srv.deleteProduct)

		r.Get("/transactions", srv.listTransactions)
		r.Post("/transactions", srv.createTransaction)
		r.Post("/transactions/{id}/accept", srv.transactionAction(domain.TransactionAccepted))
		r.Post("/transactions/{id}/reject", srv.transactionAction(domain.TransactionCancelled))
		r.Post("/transactions/{id}/complete", srv.transactionAction(domain.TransactionCompleted))
		r.Post("/transactions/{id}/cancel", srv.transactionAction(domain.TransactionCancelled))

		r.Get("/notifications", srv.listNotifications)
		r.Get("/notifications/unread-count", srv.unreadCount)
		r.Post("/notifications/{id}/read", srv.markRead)
		r.Post("/notifications/read-all", srv.markAllRead)
		r.Delete("/notifications/{id}", srv.deleteNotification)

		r.Get("/companies/{id}", srv.getCompany)
	})

	logger.Info("mockapi listening", zap.Int("port", port))
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), r); err != nil {
		logger.Fatal("mockapi failed", zap.Error(err))
	}
}

func seed() *store {
	s := &store{
		accounts:      make(map[string]*account),
		companies:     make(map[int64]domain.Company),
		products:      make(map[int64]domain.Product),
		transactions:  make(map[int64]domain.Transaction),
		notifications: make(map[int64]domain.Notification),
	}

	s.companies[1] = domain.Company{
		ID: 1, Name: "Verdalia Textiles", Sector: "textile", Location: "Lyon",
		Stats: domain.CompanyStats{SurplusCount: 12, Donations: 4, CO2SavedKg: 820, WasteReducedKg: 1430},
	}
	s.companies[2] = domain.Company{
		ID: 2, Name: "Recyclo Collective", Sector: "recycling", Location: "Nantes",
		Stats: domain.CompanyStats{SurplusCount: 3, Donations: 9, CO2SavedKg: 310, WasteReducedKg: 540},
	}
	s.nextID = 100

	for _, u := range []struct {
		login, password string
		user            domain.User
	}{
		{"seller", "surplus123", domain.User{ID: 10, Login: "seller", Email: "seller@verdalia.example", FirstName: "Claire", LastName: "Morel", Authorities: []string{domain.RoleCompany, domain.RoleUser}, CompanyID: 1}},
		{"buyer", "surplus123", domain.User{ID: 11, Login: "buyer", Email: "buyer@recyclo.example", FirstName: "Idris", LastName: "Kone", Authorities: []string{domain.RoleAssociation, domain.RoleUser}, CompanyID: 2}},
		{"admin", "surplus123", domain.User{ID: 12, Login: "admin", Email: "admin@circulo.example", Authorities: []string{domain.RoleAdmin, domain.RoleUser}}},
	} {
		hash, _ := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		s.accounts[u.login] = &account{user: u.user, passwordHash: hash}
	}

	now := time.Now()
	s.products[101] = domain.Product{
		ID: 101, CompanyID: 1, Title: "Cotton offcuts, mixed colors", Category: "textile",
		Quantity: 250, Unit: "kg", SalePrice: 0, Location: "Lyon",
		Status: domain.ProductAvailable, CreatedAt: now.Add(-48 * time.Hour),
	}
	s.products[102] = domain.Product{
		ID: 102, CompanyID: 1, Title: "Denim roll ends", Category: "textile",
		Quantity: 80, Unit: "kg", SalePrice: 120, Location: "Lyon",
		Status: domain.ProductAvailable, CreatedAt: now.Add(-24 * time.Hour),
	}
	s.nextID = 200
	return s
}

// ---- helpers ----

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondErr(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

func (s *server) signToken(u *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  u.Login,
		"auth": strings.Join(u.Authorities, " "),
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *server) parseToken(r *http.Request) (*domain.User, error) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fmt.Errorf("missing bearer token")
	}
	parsed, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	login, _ := claims["sub"].(string)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	acct, ok := s.store.accounts[login]
	if !ok {
		return nil, fmt.Errorf("unknown account")
	}
	user := acct.user
	return &user, nil
}

type ctxKey string

const userCtxKey ctxKey = "user"

func (s *server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.parseToken(r)
		if err != nil {
			respondErr(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) *domain.User {
	u, _ := r.Context().Value(userCtxKey).(*domain.User)
	return u
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// ---- auth ----

func (s *server) authenticate(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.store.mu.Lock()
	acct, ok := s.store.accounts[creds.Username]
	s.store.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(creds.Password)) != nil {
		respondErr(w, http.StatusUnauthorized, "bad credentials")
		return
	}

	token, err := s.signToken(&acct.user)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, "token signing failed")
		return
	}
	respond(w, http.StatusOK, map[string]string{"id_token": token})
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	login := strings.Split(req.Email, "@")[0]
	if _, exists := s.store.accounts[login]; exists {
		respondErr(w, http.StatusConflict, "login already in use")
		return
	}

	user := domain.User{
		ID:          s.store.id(),
		Login:       login,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Authorities: []string{req.Role, domain.RoleUser},
	}
	if req.Role == domain.RoleCompany {
		company := domain.Company{ID: s.store.id(), Name: req.CompanyName}
		s.store.companies[company.ID] = company
		user.CompanyID = company.ID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, "hashing failed")
		return
	}
	s.store.accounts[login] = &account{user: user, passwordHash: hash}
	respond(w, http.StatusCreated, user)
}

func (s *server) account(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, userFrom(r))
}

// ---- products ----

func (s *server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	out := make([]domain.Product, 0, len(s.store.products))
	for _, p := range s.store.products {
		if v := q.Get("category.equals"); v != "" && p.Category != v {
			continue
		}
		if v := q.Get("status.equals"); v != "" && string(p.Status) != v {
			continue
		}
		if v := q.Get("title.contains"); v != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(v)) {
			continue
		}
		if v := q.Get("location.contains"); v != "" && !strings.Contains(strings.ToLower(p.Location), strings.ToLower(v)) {
			continue
		}
		if v := q.Get("salePrice.greaterThanOrEqual"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && p.SalePrice < f {
				continue
			}
		}
		if v := q.Get("salePrice.lessThanOrEqual"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && p.SalePrice > f {
				continue
			}
		}
		out = append(out, p)
	}
	respond(w, http.StatusOK, out)
}

func (s *server) createProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	p.ID = s.store.id()
	if p.Status == "" {
		p.Status = domain.ProductAvailable
	}
	p.CreatedAt = time.Now()
	s.store.products[p.ID] = p
	respond(w, http.StatusCreated, p)
}

func (s *server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondErr(w, http.StatusBadRequest, "bad id")
		return
	}
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	p, exists := s.store.products[id]
	if !exists {
		respondErr(w, http.StatusNotFound, "product not found")
		return
	}
	// Only the fields the gateway patches.
	if v, ok := patch["title"].(string); ok {
		p.Title = v
	}
	if v, ok := patch["description"].(string); ok {
		p.Description = v
	}
	if v, ok := patch["status"].(string); ok {
		p.Status = domain.ProductStatus(v)
	}
	if v, ok := patch["quantity"].(float64); ok {
		p.Quantity = v
	}
	if v, ok := patch["salePrice"].(float64); ok {
		p.SalePrice = v
	}
	s.store.products[id] = p
	respond(w, http.StatusOK, p)
}

func (s *server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondErr(w, http.StatusBadRequest, "bad id")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, exists := s.store.products[id]; !exists {
		respondErr(w, http.StatusNotFound, "product not found")
		return
	}
	delete(s.store.products, id)
	w.WriteHeader(http.StatusNoContent)
}

// ---- transactions ----

func (s *server) listTransactions(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	out := make([]domain.Transaction, 0)
	for _, t := range s.store.transactions {
		if t.RequesterID == user.ID || t.SellerCompanyID == user.CompanyID || t.BuyerCompanyID == user.CompanyID {
			out = append(out, t)
		}
	}
	respond(w, http.StatusOK, out)
}

func (s *server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var t domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	product, exists := s.store.products[t.ProductID]
	if !exists {
		respondErr(w, http.StatusNotFound, "product not found")
		return
	}
	if product.Status != domain.ProductAvailable {
		respondErr(w, http.StatusConflict, "product is not available")
		return
	}

	t.ID = s.store.id()
	t.SellerCompanyID = product.CompanyID
	t.Status = domain.TransactionPending
	t.CreatedAt = time.Now()
	s.store.transactions[t.ID] = t

	s.pushNotification(product.CompanyID, domain.NotifyTransaction, "New request",
		fmt.Sprintf("A %s request arrived for %q", t.Type, product.Title))
	respond(w, http.StatusCreated, t)
}

var mockTransitions = map[domain.TransactionStatus][]domain.TransactionStatus{
	domain.TransactionPending:   {domain.TransactionAccepted, domain.TransactionCancelled},
	domain.TransactionAccepted:  {domain.TransactionInTransit, domain.TransactionCancelled},
	domain.TransactionInTransit: {domain.TransactionCompleted, domain.TransactionCancelled},
}

func canMove(from, to domain.TransactionStatus) bool {
	for _, next := range mockTransitions[from] {
		if next == to {
			return true
		}
	}
	// The gateway completes straight from IN_TRANSIT; accept ACCEPTED too
	// since it tracks IN_TRANSIT locally.
	if to == domain.TransactionCompleted && from == domain.TransactionAccepted {
		return true
	}
	return false
}

func (s *server) transactionAction(target domain.TransactionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondErr(w, http.StatusBadRequest, "bad id")
			return
		}
		var body struct {
			Reason string `json:"reason"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		s.store.mu.Lock()
		defer s.store.mu.Unlock()

		t, exists := s.store.transactions[id]
		if !exists {
			respondErr(w, http.StatusNotFound, "transaction not found")
			return
		}
		if !canMove(t.Status, target) {
			respondErr(w, http.StatusConflict,
				fmt.Sprintf("cannot move %s to %s", t.Status, target))
			return
		}

		now := time.Now()
		t.Status = target
		switch target {
		case domain.TransactionAccepted:
			t.AcceptedAt = &now
			if p, ok := s.store.products[t.ProductID]; ok {
				p.Status = domain.ProductReserved
				s.store.products[t.ProductID] = p
			}
		case domain.TransactionCancelled:
			t.Reason = body.Reason
			if p, ok := s.store.products[t.ProductID]; ok {
				p.Status = domain.ProductAvailable
				s.store.products[t.ProductID] = p
			}
		case domain.TransactionCompleted:
			t.CompletedAt = &now
			if p, ok := s.store.products[t.ProductID]; ok {
				p.Status = domain.ProductCompleted
				s.store.products[t.ProductID] = p
			}
		}
		s.store.transactions[id] = t

		s.pushNotification(t.BuyerCompanyID, domain.NotifyTransaction, "Transaction update",
			fmt.Sprintf("Transaction %d is now %s", t.ID, t.Status))
		respond(w, http.StatusOK, t)
	}
}

// pushNotification fans a notification out to every account of a company.
// Caller holds the store lock.
func (s *server) pushNotification(companyID int64, kind, title, message string) {
	for _, acct := range s.store.accounts {
		if acct.user.CompanyID != companyID {
			continue
		}
		n := domain.Notification{
			ID:        s.store.id(),
			UserID:    acct.user.ID,
			Type:      kind,
			Priority:  "normal",
			Title:     title,
			Message:   message,
			CreatedAt: time.Now(),
		}
		s.store.notifications[n.ID] = n
	}
}

// ---- notifications ----

func (s *server) listNotifications(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	out := make([]domain.Notification, 0)
	for _, n := range s.store.notifications {
		if n.UserID == user.ID {
			out = append(out, n)
		}
	}
	respond(w, http.StatusOK, out)
}

func (s *server) unreadCount(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	count := 0
	for _, n := range s.store.notifications {
		if n.UserID == user.ID && !n.Read {
			count++
		}
	}
	respond(w, http.StatusOK, map[string]int{"count": count})
}

func (s *server) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondErr(w, http.StatusBadRequest, "bad id")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if n, exists := s.store.notifications[id]; exists {
		n.Read = true
		s.store.notifications[id] = n
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) markAllRead(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	for id, n := range s.store.notifications {
		if n.UserID == user.ID {
			n.Read = true
			s.store.notifications[id] = n
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondErr(w, http.StatusBadRequest, "bad id")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, exists := s.store.notifications[id]; !exists {
		respondErr(w, http.StatusNotFound, "notification not found")
		return
	}
	delete(s.store.notifications, id)
	w.WriteHeader(http.StatusNoContent)
}

// ---- companies ----

func (s *server) getCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondErr(w, http.StatusBadRequest, "bad id")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	company, exists := s.store.companies[id]
	if !exists {
		respondErr(w, http.StatusNotFound, "company not found")
		return
	}
	respond(w, http.StatusOK, company)
}

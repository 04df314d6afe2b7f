// Package domain holds the canonical data model of the surplus marketplace
// gateway. One schema, numeric ids; the upstream API and all caches agree
// on these shapes.
package domain

import "time"

// Authorities a user may hold. Membership is multi-valued.
const (
	RoleAdmin       = "ROLE_ADMIN"
	RoleCompany     = "ROLE_COMPANY"
	RoleAssociation = "ROLE_ASSOCIATION"
	RoleUser        = "ROLE_USER"
)

// User is the account snapshot the session owns. It is a copy of the
// upstream record, never a shared live reference.
type User struct {
	ID          int64    `json:"id"`
	Login       string   `json:"login"`
	Email       string   `json:"email"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Authorities []string `json:"authorities"`
	CompanyID   int64    `json:"companyId,omitempty"`
}

// HasAuthority reports whether the user holds the given authority.
func (u *User) HasAuthority(authority string) bool {
	for _, a := range u.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// HasAnyAuthority reports whether the user holds at least one of the given
// authorities. An empty list means no restriction.
func (u *User) HasAnyAuthority(authorities ...string) bool {
	if len(authorities) == 0 {
		return true
	}
	for _, a := range authorities {
		if u.HasAuthority(a) {
			return true
		}
	}
	return false
}

// CompanyStats are cumulative impact figures. The upstream only ever grows
// them; the gateway refuses to regress a cached value.
type CompanyStats struct {
	SurplusCount   int     `json:"surplusCount"`
	Donations      int     `json:"donations"`
	CO2SavedKg     float64 `json:"co2SavedKg"`
	WasteReducedKg float64 `json:"wasteReducedKg"`
}

// Company is an organizational profile on the marketplace.
type Company struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Siret    string       `json:"siret,omitempty"`
	Sector   string       `json:"sector,omitempty"`
	Location string       `json:"location,omitempty"`
	Stats    CompanyStats `json:"stats"`
}

// ProductStatus is the lifecycle state of a surplus listing.
type ProductStatus string

const (
	ProductAvailable  ProductStatus = "AVAILABLE"
	ProductReserved   ProductStatus = "RESERVED"
	ProductInProgress ProductStatus = "IN_PROGRESS"
	ProductCompleted  ProductStatus = "COMPLETED"
)

// Product is a surplus listing owned by exactly one company. Listings are
// retired on completion, never deleted.
type Product struct {
	ID          int64         `json:"id"`
	CompanyID   int64         `json:"companyId"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Category    string        `json:"category"`
	Quantity    float64       `json:"quantity"`
	Unit        string        `json:"unit"`
	SalePrice   float64       `json:"salePrice"`
	Location    string        `json:"location,omitempty"`
	Status      ProductStatus `json:"status"`
	ExpiresAt   *time.Time    `json:"expiresAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// TransactionStatus is the lifecycle state of an exchange.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionAccepted  TransactionStatus = "ACCEPTED"
	TransactionInTransit TransactionStatus = "IN_TRANSIT"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// TransactionType distinguishes how the surplus changes hands.
type TransactionType string

const (
	TypeDonation  TransactionType = "DONATION"
	TypeSale      TransactionType = "SALE"
	TypeRecycling TransactionType = "RECYCLING"
)

// Transaction links a product, its seller company and a buyer. It holds
// references by id only; it does not own their lifecycle.
type Transaction struct {
	ID              int64             `json:"id"`
	ProductID       int64             `json:"productId"`
	SellerCompanyID int64             `json:"sellerCompanyId"`
	BuyerCompanyID  int64             `json:"buyerCompanyId,omitempty"`
	RequesterID     int64             `json:"requesterId"`
	Type            TransactionType   `json:"type"`
	Status          TransactionStatus `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	AcceptedAt      *time.Time        `json:"acceptedAt,omitempty"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Terminal reports whether the transaction can no longer change state.
func (t *Transaction) Terminal() bool {
	return t.Status == TransactionCompleted || t.Status == TransactionCancelled
}

// Notification belongs to one user. Read-state toggles are the only
// mutation; feed ordering is newest-first and never changes on read.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notification types emitted by the dispatcher.
const (
	NotifyNewListing     = "NEW_LISTING"
	NotifyTransaction    = "TRANSACTION_UPDATE"
	NotifyDeliveryUpdate = "DELIVERY_UPDATE"
)

// DeliveryStatus is the simulated carrier progress for one transaction.
type DeliveryStatus struct {
	TransactionID int64     `json:"transactionId"`
	Progress      int       `json:"progress"` // 0..100
	Carrier       string    `json:"carrier"`
	TrackingID    string    `json:"trackingId"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Credentials are what the login form submits.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// RegisterRequest creates a new marketplace account upstream.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	CompanyName string `json:"companyName,omitempty"`
	Role        string `json:"role"`
}

// Session is the resolved authentication state for one bearer token.
// Fetched flips false→true exactly once per resolution attempt, whatever
// the outcome; guarded screens must not render before that.
type Session struct {
	Token         string `json:"-"`
	User          *User  `json:"user,omitempty"`
	Authenticated bool   `json:"authenticated"`
	Fetched       bool   `json:"fetched"`
	Error         string `json:"error,omitempty"`
}

package store

import "time"

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Visible     bool   `json:"visible"`
	// Donation marks the single sentinel product used to record monetary donations.
	Donation  bool      `json:"donation,omitempty"`
	Images    []string  `json:"images,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type Order struct {
	ID         string
	OwnerEmail string
	CouponCode string
	ReceiptID  string
	OrderedAt  time.Time
	Lines      []OrderLine
}

// Total sums every line, donation lines included.
func (o Order) Total() int64 {
	var t int64
	for _, l := range o.Lines {
		t += l.Amount()
	}
	return t
}

// PurchaseTotal sums the lines that count towards lifetime spend.
func (o Order) PurchaseTotal() int64 {
	var t int64
	for _, l := range o.Lines {
		if !l.Donation {
			t += l.Amount()
		}
	}
	return t
}

// OrderLine is a snapshot of the product taken when the order was placed.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Image     string `json:"image,omitempty"`
	Donation  bool   `json:"donation,omitempty"`
}

func (l OrderLine) Amount() int64 { return l.UnitPrice * int64(l.Quantity) }

type Source string

const (
	SourcePurchase  Source = "purchase"
	SourceRandomBox Source = "randombox"
	SourceManual    Source = "manual"
)

func (s Source) Valid() bool {
	switch s {
	case SourcePurchase, SourceRandomBox, SourceManual:
		return true
	}
	return false
}

type CollectionEntry struct {
	ID          string    `json:"id"`
	OwnerEmail  string    `json:"owner_email"`
	ProductID   string    `json:"product_id"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	Description string    `json:"description,omitempty"`
	Brand       string    `json:"brand"`
	Image       string    `json:"image,omitempty"`
	Source      Source    `json:"source"`
	AddedAt     time.Time `json:"added_at"`
}

type RewardLedger struct {
	OwnerEmail string
	Remaining  int64
	Granted    int64
	UpdatedAt  time.Time
}

// Donation is a monetary gift recorded against the donation sentinel.
// UserName, UserBrand and UserImage are what the donor chose to display.
type Donation struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	DonorEmail string    `json:"donor_email"`
	Amount     int64     `json:"amount"`
	Count      int       `json:"count"`
	UserName   string    `json:"user_name,omitempty"`
	UserBrand  string    `json:"user_brand,omitempty"`
	UserImage  string    `json:"user_image,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

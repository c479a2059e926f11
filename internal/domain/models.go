package domain

import "time"

// StoreID identifies one of the two physical shops. The concrete ids come
// from configuration; nothing in the core hard-codes a store name.
type StoreID string

type Size string

const (
	Size40x40  Size = "40x40"
	Size45x45  Size = "45x45"
	Size50x50  Size = "50x50"
	Size60x60  Size = "60x60"
	SizeLombar Size = "lombar"
)

func ValidSize(size Size) bool {
	switch size {
	case Size40x40, Size45x45, Size50x50, Size60x60, SizeLombar:
		return true
	default:
		return false
	}
}

type LineType string

const (
	LineTypeCover LineType = "cover"
	LineTypeFull  LineType = "full"
)

func ValidLineType(lt LineType) bool {
	return lt == LineTypeCover || lt == LineTypeFull
}

type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// Variation is one size of a cushion product. Stock is kept per store and
// is never negative; it is mutated only by order fulfillment or a manual
// adjustment, never by cart reconciliation.
type Variation struct {
	Size            Size            `json:"size"`
	PriceCoverCents int64           `json:"price_cover_cents"`
	PriceFullCents  int64           `json:"price_full_cents"`
	Stock           map[StoreID]int `json:"stock"`
}

func (v Variation) PriceFor(lt LineType) int64 {
	if lt == LineTypeFull {
		return v.PriceFullCents
	}
	return v.PriceCoverCents
}

type Product struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Brand       string      `json:"brand"`
	Category    string      `json:"category"`
	SubCategory string      `json:"sub_category,omitempty"`
	Colors      []Color     `json:"colors"`
	Variations  []Variation `json:"variations"`
	UnitsSold   int         `json:"units_sold"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (p Product) VariationBySize(size Size) (Variation, bool) {
	for _, v := range p.Variations {
		if v.Size == size {
			return v, true
		}
	}
	return Variation{}, false
}

// CartLine references a product variation with a quantity. A stock line and
// a pre-order line for the same (product, size, type) may coexist in one
// order; they are never merged because their fulfillment semantics differ.
type CartLine struct {
	ProductID  string   `json:"product_id"`
	Size       Size     `json:"size"`
	ItemType   LineType `json:"item_type"`
	Qty        int      `json:"qty"`
	IsPreOrder bool     `json:"is_pre_order"`
}

type Order struct {
	ID            string     `json:"id"`
	Items         []CartLine `json:"items"`
	TotalCents    int64      `json:"total_cents"`
	FinalCents    *int64     `json:"final_cents,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// RevenueCents is the reporting amount for a completed order: the manually
// adjusted final price when present, the computed total otherwise.
func (o Order) RevenueCents() int64 {
	if o.FinalCents != nil {
		return *o.FinalCents
	}
	return o.TotalCents
}

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
)

// StockChange is the payload fanned out to stock-change subscribers after a
// successful stock write.
type StockChange struct {
	ProductID string  `json:"product_id"`
	Size      Size    `json:"size"`
	Store     StoreID `json:"store"`
	NewQty    int     `json:"new_qty"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type VariationInput struct {
	Size            Size  `json:"size"`
	PriceCoverCents int64 `json:"price_cover_cents"`
	PriceFullCents  int64 `json:"price_full_cents"`
	InitialStockA   int   `json:"initial_stock_a"`
	InitialStockB   int   `json:"initial_stock_b"`
}

type ProductCreateRequest struct {
	Name        string           `json:"name"`
	Brand       string           `json:"brand"`
	Category    string           `json:"category"`
	SubCategory string           `json:"sub_category,omitempty"`
	Colors      []Color          `json:"colors"`
	Variations  []VariationInput `json:"variations"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Brand       *string `json:"brand,omitempty"`
	Category    *string `json:"category,omitempty"`
	SubCategory *string `json:"sub_category,omitempty"`
	Colors      []Color `json:"colors,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type ReconcileRequest struct {
	ProductID string   `json:"product_id"`
	Size      Size     `json:"size"`
	ItemType  LineType `json:"item_type"`
	Qty       int      `json:"qty"`
}

type ReconcileResponse struct {
	ProductID    string     `json:"product_id"`
	Size         Size       `json:"size"`
	ItemType     LineType   `json:"item_type"`
	RequestedQty int        `json:"requested_qty"`
	ImmediateQty int        `json:"immediate_qty"`
	PreorderQty  int        `json:"preorder_qty"`
	ReservedQty  int        `json:"reserved_qty"`
	Lines        []CartLine `json:"lines"`
}

type OrderCreateRequest struct {
	Items         []ReconcileRequest `json:"items"`
	PaymentMethod string             `json:"payment_method"`
	FinalCents    *int64             `json:"final_cents,omitempty"`
}

type OrderResponse struct {
	Order Order `json:"order"`
}

type CompleteOrderResponse struct {
	Order            Order         `json:"order"`
	AlreadyCompleted bool          `json:"already_completed"`
	Deductions       []StockChange `json:"deductions,omitempty"`
}

type ReceiptResponse struct {
	OrderID      string `json:"order_id"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

type StockAdjustRequest struct {
	ProductID  string  `json:"product_id"`
	Size       Size    `json:"size"`
	Store      StoreID `json:"store"`
	Qty        int     `json:"qty"`
	ManagerPIN string  `json:"manager_pin"`
	Reason     string  `json:"reason"`
}

type StockAdjustResponse struct {
	ProductID string  `json:"product_id"`
	Size      Size    `json:"size"`
	Store     StoreID `json:"store"`
	OldQty    int     `json:"old_qty"`
	NewQty    int     `json:"new_qty"`
}

type RelatedColorsResponse struct {
	ProductID string    `json:"product_id"`
	FamilyKey string    `json:"family_key"`
	Products  []Product `json:"products"`
}

type SuggestionRequest struct {
	ProductIDs  []string `json:"product_ids"`
	PromptCount int      `json:"prompt_count"`
}

type Suggestion struct {
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name"`
	Colors     []Color `json:"colors"`
	ReasonCode string  `json:"reason_code"`
	Confidence float64 `json:"confidence"`
}

type UIPolicy struct {
	Show            bool `json:"show"`
	CooldownSeconds int  `json:"cooldown_seconds"`
}

type SuggestionResponse struct {
	Suggestion *Suggestion `json:"suggestion,omitempty"`
	UIPolicy   UIPolicy    `json:"ui_policy"`
	LatencyMS  int64       `json:"latency_ms"`
}

type SalesSummary struct {
	Date          string `json:"date"`
	Orders        int64  `json:"orders"`
	UnitsSold     int64  `json:"units_sold"`
	PreorderUnits int64  `json:"preorder_units"`
	RevenueCents  int64  `json:"revenue_cents"`
}

type ProductRank struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Brand     string  `json:"brand"`
	Colors    []Color `json:"colors"`
	UnitsSold int     `json:"units_sold"`
}

type RankingResponse struct {
	GeneratedAt string        `json:"generated_at"`
	Ranking     []ProductRank `json:"ranking"`
}

type PreorderBacklogEntry struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Size         Size   `json:"size"`
	PreorderQty  int    `json:"preorder_qty"`
	CurrentStock int    `json:"current_stock"`
	Shortfall    int    `json:"shortfall"`
}

type PreorderBacklogResponse struct {
	GeneratedAt string                 `json:"generated_at"`
	Entries     []PreorderBacklogEntry `json:"entries"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

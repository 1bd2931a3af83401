package domain

type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "SENT"
	StatusFailed DeliveryStatus = "FAILED"
)

// ValidStatus reports whether s is in the closed delivery status set.
// Anything else is a validation error at the boundary, not a storage error.
func ValidStatus(s string) bool {
	return s == string(StatusSent) || s == string(StatusFailed)
}

type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Condition is one filter term of a segment definition. Conditions form an
// ordered sequence; Logic joins this condition to the NEXT one in the list.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Logic    Logic  `json:"logic,omitempty"`
}

type CreateSegmentRequest struct {
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions"`
}

func (r CreateSegmentRequest) Validate() error {
	if r.Name == "" || len(r.Conditions) == 0 {
		return ErrValidation
	}
	return nil
}

type CreateSegmentResponse struct {
	SegmentID    int64 `json:"segmentId"`
	AudienceSize int64 `json:"audienceSize"`
}

type PreviewRequest struct {
	Conditions []Condition `json:"conditions"`
}

type DispatchRequest struct {
	MessageTemplate string `json:"messageTemplate"`
}

func (r DispatchRequest) Validate() error {
	if r.MessageTemplate == "" {
		return ErrValidation
	}
	return nil
}

// DispatchResult is the outcome of one campaign dispatch. DispatchID is the
// sortable batch id stamped on every log row written by the batch.
type DispatchResult struct {
	DispatchID    string `json:"dispatchId"`
	TotalMessages int    `json:"totalMessages"`
}

type AddCustomerRequest struct {
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	TotalSpending float64 `json:"total_spending"`
	LastVisitDate string  `json:"last_visit_date"`
}

func (r AddCustomerRequest) Validate() error {
	if r.Name == "" || r.Email == "" || r.Phone == "" || r.LastVisitDate == "" {
		return ErrValidation
	}
	return nil
}

type AddOrderRequest struct {
	CustomerID  int64   `json:"customer_id"`
	OrderDate   string  `json:"order_date"`
	OrderAmount float64 `json:"order_amount"`
}

func (r AddOrderRequest) Validate() error {
	if r.CustomerID == 0 || r.OrderDate == "" || r.OrderAmount == 0 {
		return ErrValidation
	}
	return nil
}

type AssignMemberRequest struct {
	CustomerID int64 `json:"customerId"`
}

type AddLogEntryRequest struct {
	SegmentID  int64  `json:"segment_id"`
	CustomerID int64  `json:"customer_id"`
	Message    string `json:"message"`
	Status     string `json:"status"`
}

func (r AddLogEntryRequest) Validate() error {
	if r.SegmentID == 0 || r.CustomerID == 0 || r.Message == "" {
		return ErrValidation
	}
	if !ValidStatus(r.Status) {
		return ErrValidation
	}
	return nil
}

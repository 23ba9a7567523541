package domain

// DCA order statuses. Orders are never physically deleted; they only
// transition between statuses.
const (
	DcaStatusActive    = "ACTIVE"
	DcaStatusStopped   = "STOPPED"
	DcaStatusCompleted = "COMPLETED"
)

// DcaOrder is a dollar-cost-average recurring order managed by the DCA
// scheduler contract. Corresponds to dca_orders table in PostgreSQL.
type DcaOrder struct {
	ID           uint64 // order id assigned by the DCA manager contract
	Owner        string
	TokenIn      string
	TokenOut     string
	AmountEach   int64 // raw amount swapped per execution (fixed-point, 9 decimals)
	IntervalMs   int64 // spacing between executions
	NbExecutions uint32
	Executed     uint32 // executions observed so far
	Status       string // DcaStatusActive | DcaStatusStopped | DcaStatusCompleted
	CreatedAt    int64  // ms
	UpdatedAt    int64  // ms
	TxHash       string // operation that created the order
}

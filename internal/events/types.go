// Package events holds the lending event catalogue and typed payload decoding.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Aggregate types.
const (
	AggregateFund       = "Fund"
	AggregateCommitment = "Commitment"
	AggregateLoan       = "Loan"
	AggregateDraw       = "Draw"
	AggregatePayment    = "Payment"
	AggregateInspection = "Inspection"
	AggregateFiling     = "ComplianceFiling"
)

// Event types, namespaced <Aggregate>.<Verb>.
const (
	FundCreated                   = "Fund.Created"
	FundUpdated                   = "Fund.Updated"
	CommitmentActivated           = "Commitment.Activated"
	CommitmentFunded              = "Commitment.Funded"
	LoanCreated                   = "Loan.Created"
	LoanStatusChanged             = "Loan.StatusChanged"
	DrawRequested                 = "Draw.Requested"
	DrawApproved                  = "Draw.Approved"
	PaymentProcessed              = "Payment.Processed"
	InspectionCompleted           = "Inspection.Completed"
	ComplianceFilingStatusChanged = "Compliance.FilingStatusChanged"
)

type FundCreatedPayload struct {
	FundID         string          `json:"fundId,omitempty"`
	Name           string          `json:"name"`
	TotalCapacity  decimal.Decimal `json:"totalCapacity"`
	OrganizationID string          `json:"organizationId,omitempty"`
}

func (FundCreatedPayload) EventType() string { return FundCreated }

type FundUpdatedPayload struct {
	FundID  string                 `json:"fundId"`
	Changes map[string]interface{} `json:"changes"`
}

func (FundUpdatedPayload) EventType() string { return FundUpdated }

type CommitmentActivatedPayload struct {
	CommitmentID string          `json:"commitmentId"`
	FundID       string          `json:"fundId"`
	InvestorID   string          `json:"investorId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

func (CommitmentActivatedPayload) EventType() string { return CommitmentActivated }

type CommitmentFundedPayload struct {
	CommitmentID string          `json:"commitmentId"`
	FundedAmount decimal.Decimal `json:"fundedAmount"`
}

func (CommitmentFundedPayload) EventType() string { return CommitmentFunded }

type LoanCreatedPayload struct {
	LoanID       string          `json:"loanId"`
	FundID       string          `json:"fundId,omitempty"`
	BorrowerName string          `json:"borrowerName"`
	Principal    decimal.Decimal `json:"principal"`
	InterestRate decimal.Decimal `json:"interestRate"`
}

func (LoanCreatedPayload) EventType() string { return LoanCreated }

type LoanStatusChangedPayload struct {
	LoanID string `json:"loanId"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

func (LoanStatusChangedPayload) EventType() string { return LoanStatusChanged }

type DrawRequestedPayload struct {
	DrawID string          `json:"drawId"`
	LoanID string          `json:"loanId"`
	Amount decimal.Decimal `json:"amount"`
}

func (DrawRequestedPayload) EventType() string { return DrawRequested }

type DrawApprovedPayload struct {
	DrawID         string          `json:"drawId"`
	LoanID         string          `json:"loanId"`
	ApprovedAmount decimal.Decimal `json:"approvedAmount"`
	ApprovedBy     string          `json:"approvedBy,omitempty"`
}

func (DrawApprovedPayload) EventType() string { return DrawApproved }

// PaymentProcessedPayload is published on the Payment aggregate; LoanID ties it
// to the loan it pays down.
type PaymentProcessedPayload struct {
	PaymentID   string          `json:"paymentId"`
	LoanID      string          `json:"loanId"`
	Amount      decimal.Decimal `json:"amount"`
	Principal   decimal.Decimal `json:"principal"`
	Interest    decimal.Decimal `json:"interest"`
	ProcessedAt time.Time       `json:"processedAt"`
}

func (PaymentProcessedPayload) EventType() string { return PaymentProcessed }

type InspectionCompletedPayload struct {
	InspectionID    string          `json:"inspectionId"`
	LoanID          string          `json:"loanId"`
	DrawID          string          `json:"drawId,omitempty"`
	PercentComplete decimal.Decimal `json:"percentComplete"`
	Passed          bool            `json:"passed"`
}

func (InspectionCompletedPayload) EventType() string { return InspectionCompleted }

type ComplianceFilingStatusChangedPayload struct {
	FilingID string `json:"filingId"`
	From     string `json:"from"`
	To       string `json:"to"`
}

func (ComplianceFilingStatusChangedPayload) EventType() string {
	return ComplianceFilingStatusChanged
}

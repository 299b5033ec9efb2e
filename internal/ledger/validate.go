package ledger

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// ValidateLines applies the posting checks in order: organization match,
// contiguous line numbers, debit/credit balance, then header total.
func ValidateLines(orgID uuid.UUID, total float64, lines []LineInput, tolerance float64) error {
	if len(lines) == 0 {
		return shared.Errorf(shared.KindValidation, "transaction requires at least one line")
	}
	for _, line := range lines {
		if line.OrganizationID != orgID {
			return shared.Errorf(shared.KindOrganizationBoundaryViolation,
				"line %d belongs to organization %s, header to %s", line.LineNumber, line.OrganizationID, orgID)
		}
	}
	numbers := make([]int, len(lines))
	for i, line := range lines {
		numbers[i] = line.LineNumber
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			return shared.Errorf(shared.KindValidation, "line numbers must be unique and contiguous from 1, got %v", numbers)
		}
	}
	var debit, credit, sum float64
	for _, line := range lines {
		switch line.LineType {
		case LineDebit:
			debit += line.LineAmount
		case LineCredit:
			credit += line.LineAmount
		}
		sum += line.LineAmount
	}
	if !within(debit, credit, tolerance) {
		return shared.Errorf(shared.KindUnbalancedLines, "debits %.2f do not equal credits %.2f", debit, credit)
	}
	if !within(sum, total, tolerance) {
		return shared.Errorf(shared.KindTotalMismatch, "lines sum to %.2f, header total is %.2f", sum, total)
	}
	return nil
}

func within(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance+1e-9
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusPosted
	case StatusPosted:
		return to == StatusReversed || to == StatusConsumed
	}
	return false
}

// offsetLines builds the lines of a reversal: debit and credit swap sides,
// every other line is negated. Amounts are never edited in place.
func offsetLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, line := range lines {
		rev := line
		rev.ID = uuid.New()
		switch line.LineType {
		case LineDebit:
			rev.LineType = LineCredit
		case LineCredit:
			rev.LineType = LineDebit
		default:
			rev.LineAmount = -line.LineAmount
			rev.UnitAmount = -line.UnitAmount
			if line.TaxAmount != nil {
				tax := -*line.TaxAmount
				rev.TaxAmount = &tax
			}
		}
		out[i] = rev
	}
	return out
}

func sumLines(lines []Line) float64 {
	var total float64
	for _, line := range lines {
		total += line.LineAmount
	}
	return total
}

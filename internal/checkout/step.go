package checkout

import "fmt"

// Step is the position of a draft in the checkout wizard.
type Step int

const (
	StepAddress         Step = 1
	StepPaymentShipping Step = 2
	StepReview          Step = 3
	StepConfirmed       Step = 4
)

func (s Step) String() string {
	switch s {
	case StepAddress:
		return "ADDRESS"
	case StepPaymentShipping:
		return "PAYMENT_SHIPPING"
	case StepReview:
		return "REVIEW"
	case StepConfirmed:
		return "CONFIRMED"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// IsTerminal reports whether no further transition is possible.
func (s Step) IsTerminal() bool { return s == StepConfirmed }

// Valid reports whether s is one of the four wizard steps.
func (s Step) Valid() bool { return s >= StepAddress && s <= StepConfirmed }

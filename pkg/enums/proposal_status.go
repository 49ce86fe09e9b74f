package enums

import "slices"

// ProposalStatus maps to the proposal_status enum in Postgres.
type ProposalStatus string

const (
	ProposalStatusSubmitted ProposalStatus = "submitted"
	ProposalStatusAccepted  ProposalStatus = "accepted"
	ProposalStatusDeclined  ProposalStatus = "declined"
	ProposalStatusWithdrawn ProposalStatus = "withdrawn"
)

var validProposalStatuses = []ProposalStatus{
	ProposalStatusSubmitted,
	ProposalStatusAccepted,
	ProposalStatusDeclined,
	ProposalStatusWithdrawn,
}

// IsValid reports whether the value is a known ProposalStatus.
func (p ProposalStatus) IsValid() bool {
	return slices.Contains(validProposalStatuses, p)
}

// ParseProposalStatus converts raw input into a ProposalStatus.
func ParseProposalStatus(value string) (ProposalStatus, error) {
	return parse("proposal status", value, validProposalStatuses)
}

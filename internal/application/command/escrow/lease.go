package escrow

import (
	"encoding/json"
)

// Account is an opaque caller identity supplied by the wallet layer.
type Account string

type Lease struct {
	ID               uint64  `json:"id"`
	Landlord         Account `json:"landlord"`
	Tenant           Account `json:"tenant"`
	DepositAmount    uint64  `json:"depositAmount"`
	StartDate        uint64  `json:"startDate"`
	EndDate          uint64  `json:"endDate"`
	IsActive         bool    `json:"isActive"`
	LandlordApproved bool    `json:"landlordApproved"`
}

// LeaseTerms are the caller-supplied fields of a new lease.
type LeaseTerms struct {
	Landlord      Account `json:"landlord"`
	DepositAmount uint64  `json:"depositAmount"`
	StartDate     uint64  `json:"startDate"`
	EndDate       uint64  `json:"endDate"`
}

func (l *Lease) ToJSON() ([]byte, error) {
	return json.Marshal(l)
}

func leaseFromJSON(data []byte) (Lease, error) {
	var lease Lease
	err := json.Unmarshal(data, &lease)
	return lease, err
}

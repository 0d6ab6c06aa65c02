package refdata

import "time"

// Branch is a store location able to take in warranties and returns.
type Branch struct {
	ID        string
	Name      string
	Address   string
	Active    bool
	CreatedAt time.Time
}

// Vendor is a supplier that assesses items handed over by a branch.
type Vendor struct {
	ID        string
	Name      string
	Phone     string
	Active    bool
	CreatedAt time.Time
}

package models

// SweepReport summarises one overdue sweep.
type SweepReport struct {
	Examined  int `json:"examined"`
	Closed    int `json:"closed"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	// Swept lists bookings moved to a terminal status by this run.
	Swept []int64 `json:"swept,omitempty"`
}

// Total is the number of bookings the sweep actually closed.
func (r SweepReport) Total() int {
	return r.Closed + r.Cancelled
}

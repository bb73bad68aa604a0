package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OpportunitiesDetected Counter
	PositionsOpened       Counter
	PositionsClosed       Counter
	AdmissionRejected     Counter
	TicksSkipped          Counter
	OrdersPlaced          Counter
	OrdersFailed          Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OpportunitiesDetected: n,
		PositionsOpened:       n,
		PositionsClosed:       n,
		AdmissionRejected:     n,
		TicksSkipped:          n,
		OrdersPlaced:          n,
		OrdersFailed:          n,
	}
}

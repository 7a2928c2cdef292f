package monitoring

import (
	"strconv"
	"time"

	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raffle_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	reservationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_reservation_ops_total",
			Help: "Reservation lifecycle operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	locksSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_locks_swept_total",
			Help: "Expired ticket locks reclaimed by the sweep",
		},
	)

	qrFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_qr_failures_total",
			Help: "Payment QR generation failures (sales still committed)",
		},
	)

	ticketStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "raffle_tickets",
			Help: "Current ticket count per status",
		},
		[]string{"status"},
	)
)

func RecordHTTPRequest(method, route string, status int, dur time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(dur.Seconds())
}

func RecordReservationOp(op, outcome string) {
	reservationOps.WithLabelValues(op, outcome).Inc()
}

func AddLocksSwept(n int64) {
	if n > 0 {
		locksSwept.Add(float64(n))
	}
}

func RecordQRFailure() {
	qrFailures.Inc()
}

func SetTicketCounts(c domain.TicketCounts) {
	ticketStatus.WithLabelValues(string(domain.TicketAvailable)).Set(float64(c.Available))
	ticketStatus.WithLabelValues(string(domain.TicketLocked)).Set(float64(c.Locked))
	ticketStatus.WithLabelValues(string(domain.TicketSold)).Set(float64(c.Sold))
}

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuctionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctions_created_total",
		Help: "Total number of auctions created",
	})

	AuctionsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctions_deleted_total",
		Help: "Total number of auctions deleted",
	})

	BidsPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_placed_total",
		Help: "Total number of accepted bids",
	})

	BidsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bids_rejected_total",
		Help: "Total number of rejected bids",
	}, []string{"reason"})

	BidConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bid_conflict_retries_total",
		Help: "Total number of bid retries after a concurrent write",
	})

	BidCacheReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bid_cache_reads_total",
		Help: "Minimum bid lookups answered by the bid cache",
	}, []string{"result"})

	BidLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bid_latency_seconds",
		Help:    "Latency of bid placement",
		Buckets: prometheus.DefBuckets,
	})

	VideoRequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_request_transitions_total",
		Help: "Video request status changes",
	}, []string{"status"})

	VideoOrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_order_transitions_total",
		Help: "Video order status and payment changes",
	}, []string{"status"})

	PaymentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_events_total",
		Help: "Payment events processed by outcome",
	}, []string{"type", "outcome"})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processing_latency_seconds",
		Help:    "Latency of payment event processing",
		Buckets: prometheus.DefBuckets,
	})

	ActiveWatchers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_live_watchers",
		Help: "Open live auction subscriptions",
	})

	DroppedLiveUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_live_updates_dropped_total",
		Help: "Live updates dropped for slow watchers",
	})

	StaleLiveUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_live_updates_stale_total",
		Help: "Bid updates skipped because a newer bid was already sent",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

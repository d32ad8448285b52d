package telemetry

// Histogram bucket definitions
var (
	// FlushBuckets for sorting and writing one table's bulk file
	FlushBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300}
)

// Input metrics
var (
	// RecordsTotal counts source records by result (processed, skipped)
	RecordsTotal CounterVec = noopCounterVec{}

	// RecordsSkippedTotal counts skipped records by reason (input_parse, malformed_identifier, other)
	RecordsSkippedTotal CounterVec = noopCounterVec{}

	// DuplicateSeedsTotal counts records whose public identity was probably seen before
	DuplicateSeedsTotal Counter = NoopStat{}
)

// Writer metrics
var (
	// FactsBufferedTotal counts facts routed into each table buffer
	FactsBufferedTotal CounterVec = noopCounterVec{}

	// RowsWrittenTotal counts rows written to bulk files per table
	RowsWrittenTotal CounterVec = noopCounterVec{}

	// FlushDurationSeconds measures sort + write time per table
	FlushDurationSeconds HistogramVec = noopHistogramVec{}

	// TablesFinalizedTotal counts finalize outcomes per table and result (success, failed)
	TablesFinalizedTotal CounterVec = noopCounterVec{}
)

// Notification metrics
var (
	// NotificationsTotal counts completion notifications by sink and result
	NotificationsTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all metrics. Call after InitializeTelemetry().
func InitMetrics() {
	RecordsTotal = NewCounterVec(
		"records_total",
		"Source records by result",
		[]string{"result"},
	)
	RecordsSkippedTotal = NewCounterVec(
		"records_skipped_total",
		"Skipped source records by reason",
		[]string{"reason"},
	)
	DuplicateSeedsTotal = NewCounter(
		"duplicate_seeds_total",
		"Records whose public identity was probably seen earlier in the input",
	)

	FactsBufferedTotal = NewCounterVec(
		"facts_buffered_total",
		"Facts routed into table buffers",
		[]string{"table"},
	)
	RowsWrittenTotal = NewCounterVec(
		"rows_written_total",
		"Rows written to bulk files",
		[]string{"table"},
	)
	FlushDurationSeconds = NewHistogramVec(
		"flush_duration_seconds",
		"Time to sort and write one table's bulk file",
		[]string{"table"},
		FlushBuckets,
	)
	TablesFinalizedTotal = NewCounterVec(
		"tables_finalized_total",
		"Table finalize outcomes",
		[]string{"table", "result"},
	)

	NotificationsTotal = NewCounterVec(
		"notifications_total",
		"Completion notifications by sink and result",
		[]string{"sink", "result"},
	)
}

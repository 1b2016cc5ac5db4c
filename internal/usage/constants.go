package usage

// BatchFlushThreshold is the number of buffered entries that triggers a
// write without waiting for the flush timer.
const BatchFlushThreshold = 100

// dateLayout is the day-precision layout used by readers and Redis keys.
const dateLayout = "2006-01-02"

// sqliteTimeLayout is fixed-width so stored timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

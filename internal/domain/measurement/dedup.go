package measurement

import (
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ManualDedupWindow is the time window around a manual candidate inside
// which a stored reading of the same patient and type can shadow it.
const ManualDedupWindow = 5 * time.Minute

// Tolerance returns the duplicate value tolerance for a candidate value:
// 0.1% of the candidate, floored at 0.1 absolute, in canonical units.
func Tolerance(candidate float64) float64 {
	return math.Max(0.001*math.Abs(candidate), 0.1)
}

// FindDuplicate scans stored readings near the candidate and returns the
// first one that makes the candidate a duplicate: same patient and type are
// the caller's query contract, so only |Δt| and |Δvalue| are checked here.
// Returns nil when the candidate is original.
func FindDuplicate(candidate *Measurement, nearby []*Measurement) *Measurement {
	tol := Tolerance(candidate.Value)
	for _, stored := range nearby {
		dt := candidate.MeasuredAt.Sub(stored.MeasuredAt)
		if dt < 0 {
			dt = -dt
		}
		if dt > ManualDedupWindow {
			continue
		}
		if math.Abs(candidate.Value-stored.Value) <= tol {
			return stored
		}
	}
	return nil
}

// DedupLockKey derives the advisory-lock key guarding the manual dedup
// check-then-insert against concurrent double-taps. Keyed on (patient,
// type, 5-minute bucket) so unrelated submissions never contend.
func DedupLockKey(patientID uuid.UUID, mtype string, at time.Time) int64 {
	bucket := at.Truncate(ManualDedupWindow).Unix()
	h := fnv.New64a()
	h.Write(patientID[:])
	h.Write([]byte(mtype))
	h.Write([]byte(strconv.FormatInt(bucket, 10)))
	return int64(h.Sum64())
}

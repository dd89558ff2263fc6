package anonymize

import (
	"fmt"
	"strings"

	"privalytics/domain/core"
	"privalytics/domain/research"
)

// Generalization levels. Gender is never generalized; it is the lowest
// cardinality quasi-identifier and removing it rarely rescues a partition.
const (
	levelRaw          = 0 // decade age, verbatim location, 30-minute duration band
	levelRegion       = 1 // location widened to region
	levelWideAge      = 2 // age widened to 20-year band
	levelNoDuration   = 3 // duration suppressed
	levelSuppressed   = 4 // age and location suppressed
	maxGeneralization = levelSuppressed
)

// regionMap maps known locations to coarse regions. Unknown locations fall
// back to a shared bucket so they still merge under generalization.
var regionMap = map[string]string{
	"boston":        "northeast",
	"cambridge":     "northeast",
	"new york":      "northeast",
	"philadelphia":  "northeast",
	"chicago":       "midwest",
	"minneapolis":   "midwest",
	"detroit":       "midwest",
	"atlanta":       "south",
	"houston":       "south",
	"miami":         "south",
	"seattle":       "west",
	"portland":      "west",
	"san francisco": "west",
	"los angeles":   "west",
	"denver":        "west",

	// Region names map to themselves so regionOf is idempotent: records
	// whose location was already rewritten to a region keep a stable key
	// when the output is re-partitioned for metrics.
	"northeast": "northeast",
	"midwest":   "midwest",
	"south":     "south",
	"west":      "west",
	"other":     "other",
}

func regionOf(location string) string {
	if region, ok := regionMap[strings.ToLower(strings.TrimSpace(location))]; ok {
		return region
	}
	return "other"
}

func ageBucket(age int, level int) string {
	switch {
	case level >= levelSuppressed:
		return "*"
	case level >= levelWideAge:
		lo := (age / 20) * 20
		return fmt.Sprintf("%d-%d", lo, lo+19)
	default:
		lo := (age / 10) * 10
		return fmt.Sprintf("%d-%d", lo, lo+9)
	}
}

func locationBucket(location string, level int) string {
	switch {
	case level >= levelSuppressed:
		return "*"
	case level >= levelRegion:
		return regionOf(location)
	default:
		return location
	}
}

func durationBucket(minutes float64, level int) string {
	if level >= levelNoDuration {
		return "*"
	}
	lo := int(minutes/30) * 30
	return fmt.Sprintf("%d-%dmin", lo, lo+29)
}

// quasiKey computes the partition key for a record at its current
// generalization level.
func quasiKey(r research.ResearchRecord) research.QuasiKey {
	return research.QuasiKey{
		AgeBucket:      ageBucket(r.Age, r.GeneralizationLevel),
		Gender:         r.Gender,
		Location:       locationBucket(r.Location, r.GeneralizationLevel),
		DurationBucket: durationBucket(r.SessionDuration, r.GeneralizationLevel),
	}
}

// partition groups record indices by quasi-identifier tuple.
func partition(records []research.ResearchRecord) map[research.QuasiKey][]int {
	partitions := make(map[research.QuasiKey][]int)
	for i, r := range records {
		key := quasiKey(r)
		partitions[key] = append(partitions[key], i)
	}
	return partitions
}

func minPartitionSize(partitions map[research.QuasiKey][]int) int {
	min := 0
	for _, members := range partitions {
		if min == 0 || len(members) < min {
			min = len(members)
		}
	}
	return min
}

// generalize raises the generalization level of undersized partitions until
// every partition meets k or no further generalization is possible. Only
// undersized partitions are touched; partitions already at or above k keep
// their raw buckets. Returns the number of partitions still below k.
func (e *Engine) generalize(records []research.ResearchRecord) int {
	for round := 0; round <= maxGeneralization; round++ {
		partitions := partition(records)

		progressed := false
		for _, members := range partitions {
			if len(members) >= e.cfg.KAnonymity {
				continue
			}
			for _, idx := range members {
				if records[idx].GeneralizationLevel < maxGeneralization {
					records[idx].GeneralizationLevel++
					progressed = true
				}
			}
		}
		if !progressed {
			break
		}
	}

	// Rewrite visible quasi-identifier values to their generalized
	// representatives so the output carries no finer data than its bucket.
	for i := range records {
		level := records[i].GeneralizationLevel
		if level >= levelSuppressed {
			records[i].Age = 0
			records[i].Location = "*"
		} else {
			if level >= levelWideAge {
				records[i].Age = (records[i].Age / 20) * 20
			}
			if level >= levelRegion {
				records[i].Location = regionOf(records[i].Location)
			}
		}
		if level >= levelNoDuration {
			records[i].SessionDuration = 0
		}
	}

	undersized := 0
	for _, members := range partition(records) {
		if len(members) < e.cfg.KAnonymity {
			undersized++
		}
	}
	return undersized
}

func nowTS() core.Timestamp { return core.Now() }

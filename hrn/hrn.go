// Package hrn implements the catalog identifier (HRN) value type described
// in spec §3: an opaque colon-delimited identifier carrying a "partition"
// segment that selects which lookup endpoint table entry to use.
package hrn

import (
	"strings"

	"github.com/heremaps/olp-sdk-go/pkg/errors"
)

// Partition identifies which regional deployment a catalog belongs to. It
// drives the finite lookup-endpoint table in spec §6.2.
type Partition string

const (
	PartitionHere      Partition = "here"
	PartitionHereDev   Partition = "here-dev"
	PartitionHereCN    Partition = "here-cn"
	PartitionHereCNDev Partition = "here-cn-dev"
)

// HRN is an immutable catalog identifier of the form
// "hrn:<partition>:data::<realm>:<catalog>".
type HRN struct {
	raw       string
	partition Partition
}

// Parse validates and parses a raw HRN string. Only the shape needed to
// extract the partition segment is enforced; the remaining segments are
// opaque to this SDK and passed through verbatim in REST paths.
func Parse(raw string) (HRN, error) {
	if raw == "" {
		return HRN{}, errors.NewInvalidArgument("hrn: empty value")
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 3 || parts[0] != "hrn" {
		return HRN{}, errors.Newf(errors.InvalidArgument, "hrn: malformed identifier %q", raw)
	}

	return HRN{raw: raw, partition: Partition(parts[1])}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constant catalog identifiers known at compile time.
func MustParse(raw string) HRN {
	h, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return h
}

// String returns the HRN's canonical (original) string form.
func (h HRN) String() string {
	return h.raw
}

// Partition returns the HRN's partition segment.
func (h HRN) Partition() Partition {
	return h.partition
}

// IsZero reports whether h is the zero value.
func (h HRN) IsZero() bool {
	return h.raw == ""
}

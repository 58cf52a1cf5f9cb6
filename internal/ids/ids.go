package ids

import "github.com/segmentio/ksuid"

// New returns a time-sortable identifier used as primary key for accounts,
// organizations and auth events.
func New() string {
	return ksuid.New().String()
}

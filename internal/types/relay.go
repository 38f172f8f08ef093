package types

// SubClass classifies a subscription by what issued it
type SubClass int

const (
	SubHistorical SubClass = iota
	SubRealtime
	SubProfileBatch
	SubThreadFetch
	SubPagination
)

func (c SubClass) String() string {
	switch c {
	case SubHistorical:
		return "hist"
	case SubRealtime:
		return "live"
	case SubProfileBatch:
		return "prof"
	case SubThreadFetch:
		return "fetch"
	case SubPagination:
		return "page"
	}
	return "sub"
}

// Subscription is a tracked REQ: its identifier, filters and class
type Subscription struct {
	ID      string
	Filters []Filter
	Class   SubClass
}

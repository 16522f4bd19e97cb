package audit

import (
	"encoding/json"
	"time"
)

// TimelineFilters narrows a timeline query. From is inclusive, To exclusive;
// zero values leave the bound open. ActorID zero matches every actor.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one recorded audit event.
type TimelineRow struct {
	At       time.Time
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     json.RawMessage
}

// PagingInfo carries windowed paging metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles one timeline page with its paging info.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

package market

import (
	"context"
	"time"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// ToggleSidebar flips the sidebar flag and returns the new value.
func (s *Service) ToggleSidebar(ctx context.Context) bool {
	var open bool
	s.update(func(st *domain.Snapshot) {
		st.UI.SidebarOpen = !st.UI.SidebarOpen
		open = st.UI.SidebarOpen
	})
	s.publishState(ctx)
	return open
}

// CloseSidebar clears the sidebar flag.
func (s *Service) CloseSidebar(ctx context.Context) {
	s.update(func(st *domain.Snapshot) { st.UI.SidebarOpen = false })
	s.publishState(ctx)
}

// SetActivePool selects the pool shown in detail views. Any id is accepted.
func (s *Service) SetActivePool(ctx context.Context, id uint64) {
	s.update(func(st *domain.Snapshot) { st.UI.ActivePoolID = id })
	s.publishState(ctx)
}

// FormatTimestamp renders unix seconds as "Jan 02, 2006".
func (s *Service) FormatTimestamp(unix int64) string {
	return FormatTimestamp(unix, s.opts.Location)
}

// FormatTimestamp renders unix seconds as "Jan 02, 2006" in loc.
func FormatTimestamp(unix int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(unix, 0).In(loc).Format("Jan 02, 2006")
}

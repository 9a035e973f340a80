package access

import "github.com/trezcool/academia/core/record"

// ViewMode is how a screen offering both a card and a table view renders a resource.
type ViewMode string

const (
	ViewModeBoth    ViewMode = "both" // tabbed
	ViewModeTable   ViewMode = "table"
	ViewModeCard    ViewMode = "card"
	ViewModeNothing ViewMode = "nothing" // empty state
)

// ViewSet is the union of the views of every effective role. Anonymous principals see nothing.
func ViewSet(p *Principal) Set {
	if p.IsAnonymous() {
		return make(Set)
	}
	return p.Views()
}

// ViewModeFor picks the mode of res from the "<res>:table" and "<res>:card" views.
func ViewModeFor(views Set, res record.Resource) ViewMode {
	table := views.Has(View(res, TableView))
	card := views.Has(View(res, CardView))
	switch {
	case table && card:
		return ViewModeBoth
	case table:
		return ViewModeTable
	case card:
		return ViewModeCard
	}
	return ViewModeNothing
}

// ViewModes computes the mode of every resource.
func ViewModes(views Set, resources ...record.Resource) map[record.Resource]ViewMode {
	if len(resources) == 0 {
		resources = record.AllResources
	}
	modes := make(map[record.Resource]ViewMode, len(resources))
	for _, res := range resources {
		modes[res] = ViewModeFor(views, res)
	}
	return modes
}

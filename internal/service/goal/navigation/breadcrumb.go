package navigation

import (
	"goalbreaker/internal/domain/models/goal"
)

// MaxAncestorHops bounds parent walks so malformed or cyclic metadata cannot loop forever.
const MaxAncestorHops = 100

// Crumb is one breadcrumb entry
type Crumb struct {
	TurnID string `json:"turnId"`
	Label  string `json:"label"`
	Title  string `json:"title"`
}

// BreadcrumbPath returns the turns from the outermost known ancestor down to targetID.
// The walk stops at a parentless turn or at a parent id that is not in the history.
func BreadcrumbPath(turns []goal.Turn, targetID string) []goal.Turn {
	idx := newIndex(turns)

	current, ok := idx.byID[targetID]
	if !ok {
		return []goal.Turn{}
	}

	path := []goal.Turn{current}
	for hops := 1; hops < MaxAncestorHops; hops++ {
		parentID := current.ParentID()
		if parentID == "" {
			break
		}
		parent, ok := idx.byID[parentID]
		if !ok {
			break
		}
		path = append(path, parent)
		current = parent
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Breadcrumbs labels a breadcrumb path for display.
func Breadcrumbs(turns []goal.Turn, targetID string) []Crumb {
	path := BreadcrumbPath(turns, targetID)
	crumbs := make([]Crumb, 0, len(path))
	for _, t := range path {
		crumbs = append(crumbs, Crumb{
			TurnID: t.ID,
			Label:  Label(t),
			Title:  Title(t),
		})
	}
	return crumbs
}

// Label names a turn the way tree nodes do: Goal for roots, Step N for drill-downs, Chat otherwise.
func Label(t goal.Turn) string {
	switch {
	case t.StepNumber() != "":
		return "Step " + t.StepNumber()
	case t.ParentID() == "":
		return rootLabel
	default:
		return chatLabel
	}
}

// Title is the cleaned display title of a turn.
func Title(t goal.Turn) string {
	if t.Metadata != nil && t.Metadata.ParentStepTitle != "" {
		return CleanGoalTitle(t.Metadata.ParentStepTitle)
	}
	return CleanGoalTitle(t.UserMessage)
}

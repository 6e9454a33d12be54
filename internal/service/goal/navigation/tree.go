// Package navigation derives drill-down trees and breadcrumb paths from a turn history.
// Nothing here mutates the history.
package navigation

import (
	"fmt"
	"strconv"

	"goalbreaker/internal/domain/models/goal"
)

const (
	rootLabel        = "Goal"
	chatLabel        = "Chat"
	rootDescription  = "Root Strategy"
	virtualIDPattern = "virtual-%s-%d"
)

// index is a read-only view of the history keyed for tree walks
type index struct {
	byID     map[string]goal.Turn
	children map[string][]goal.Turn // parent id -> children in history order
}

func newIndex(turns []goal.Turn) index {
	idx := index{
		byID:     make(map[string]goal.Turn, len(turns)),
		children: make(map[string][]goal.Turn),
	}
	for _, t := range turns {
		idx.byID[t.ID] = t
		idx.children[t.ParentID()] = append(idx.children[t.ParentID()], t)
	}
	return idx
}

// BuildHybridTree returns the navigation nodes below parentID ("" for the root level).
//
// Root level lists every parentless turn. Below a real turn, each planned step
// of its first agent becomes a node labeled parentLabel.(i+1); the node is real
// when a child turn was drilled from that label and virtual otherwise. Child
// turns that match no planned step are appended as "Chat" nodes.
func BuildHybridTree(turns []goal.Turn, parentID string) []*goal.TreeNode {
	idx := newIndex(turns)
	visited := map[string]bool{}

	// pending expansions: each fills the Children of one real node
	type job struct {
		turnID string
		into   *[]*goal.TreeNode
	}

	var roots []*goal.TreeNode
	var stack []job

	if parentID == "" {
		for _, t := range idx.children[""] {
			label := rootLabel
			if n := t.StepNumber(); n != "" {
				label = "Step " + n
			}
			node := &goal.TreeNode{
				ID:          t.ID,
				Type:        goal.NodeReal,
				Label:       label,
				Title:       t.UserMessage,
				Description: rootDescription,
				Children:    []*goal.TreeNode{},
				TurnID:      t.ID,
				Expanded:    true,
			}
			roots = append(roots, node)
			stack = append(stack, job{turnID: t.ID, into: &node.Children})
		}
	} else {
		stack = append(stack, job{turnID: parentID, into: &roots})
	}

	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[j.turnID] {
			continue
		}
		visited[j.turnID] = true

		nodes, next := expand(idx, j.turnID)
		*j.into = append(*j.into, nodes...)
		for _, n := range next {
			stack = append(stack, job{turnID: n.TurnID, into: &n.Children})
		}
	}

	if roots == nil {
		roots = []*goal.TreeNode{}
	}
	return roots
}

// expand builds the direct children of one real turn and returns the real
// nodes that still need their own children filled in.
func expand(idx index, parentID string) (nodes []*goal.TreeNode, pending []*goal.TreeNode) {
	parent, ok := idx.byID[parentID]
	if !ok {
		return nil, nil
	}

	agent, _ := parent.Agents.First()
	parentLabel := parent.StepNumber()
	realChildren := idx.children[parentID]
	matched := map[string]bool{}

	for i, step := range agent.Steps() {
		label := StepLabel(parentLabel, i)

		var match *goal.Turn
		for k := range realChildren {
			if realChildren[k].StepNumber() == label {
				match = &realChildren[k]
				break
			}
		}

		if match != nil {
			title := step.Step
			if title == "" {
				title = match.UserMessage
			}
			node := &goal.TreeNode{
				ID:          match.ID,
				Type:        goal.NodeReal,
				Label:       "Step " + label,
				Title:       title,
				Description: step.Description,
				Children:    []*goal.TreeNode{},
				TurnID:      match.ID,
				ParentID:    parentID,
				ModelID:     agent.ModelID,
				StepNumber:  label,
			}
			matched[match.ID] = true
			nodes = append(nodes, node)
			pending = append(pending, node)
			continue
		}

		nodes = append(nodes, &goal.TreeNode{
			ID:          fmt.Sprintf(virtualIDPattern, parentID, i),
			Type:        goal.NodeVirtual,
			Label:       "Step " + label,
			Title:       step.Step,
			Description: step.Description,
			Children:    []*goal.TreeNode{},
			ParentID:    parentID,
			ModelID:     agent.ModelID,
			StepNumber:  label,
		})
	}

	for _, child := range realChildren {
		if matched[child.ID] {
			continue
		}
		node := &goal.TreeNode{
			ID:       child.ID,
			Type:     goal.NodeReal,
			Label:    chatLabel,
			Title:    child.UserMessage,
			Children: []*goal.TreeNode{},
			TurnID:   child.ID,
			ParentID: parentID,
		}
		nodes = append(nodes, node)
		pending = append(pending, node)
	}

	return nodes, pending
}

// StepLabel is the dotted label of the i-th (0-based) planned step below a parent label.
func StepLabel(parentLabel string, i int) string {
	n := strconv.Itoa(i + 1)
	if parentLabel == "" {
		return n
	}
	return parentLabel + "." + n
}

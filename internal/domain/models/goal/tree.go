package goal

// NodeType distinguishes materialized turns from planned steps
type NodeType string

const (
	NodeReal    NodeType = "real"
	NodeVirtual NodeType = "virtual"
)

// TreeNode is a derived navigation node; it is never stored.
// Virtual nodes carry ParentID, ModelID and StepNumber so they can be drilled into.
type TreeNode struct {
	ID          string      `json:"id"`
	Type        NodeType    `json:"type"`
	Label       string      `json:"label"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Children    []*TreeNode `json:"children"`
	TurnID      string      `json:"turnId,omitempty"`
	ParentID    string      `json:"parentId,omitempty"`
	ModelID     string      `json:"modelId,omitempty"`
	StepNumber  string      `json:"stepNumber,omitempty"`
	Expanded    bool        `json:"isExpandedDefault"`
}

func (n *TreeNode) IsVirtual() bool {
	return n.Type == NodeVirtual
}

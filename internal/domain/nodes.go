package domain

// Node identifies one analysis node the dispatcher can fan out to. The set
// is closed: dispatch goes through an explicit table and the compiler flags
// a missing case, never a runtime string miss.
type Node int

const (
	NodeMarket Node = iota
	NodeConcentration
	NodeDiversification
	NodeLiquidity
	NodeMacro
	NodeCompliance

	NodeCount // sentinel, keep last
)

var nodeNames = [NodeCount]string{
	NodeMarket:          "market",
	NodeConcentration:   "concentration",
	NodeDiversification: "diversification",
	NodeLiquidity:       "liquidity",
	NodeMacro:           "macro",
	NodeCompliance:      "compliance",
}

// String returns the node's wire name
func (n Node) String() string {
	if n < 0 || n >= NodeCount {
		return "unknown"
	}
	return nodeNames[n]
}

// IsAdvisory reports whether the node is an external advisory agent rather
// than a deterministic rule chain
func (n Node) IsAdvisory() bool {
	return n == NodeMacro || n == NodeCompliance
}

// ParseNode resolves a wire name to a node. Unknown names return ok=false;
// the supervisor drops them to preserve candidate containment.
func ParseNode(name string) (Node, bool) {
	for n := Node(0); n < NodeCount; n++ {
		if nodeNames[n] == name {
			return n, true
		}
	}
	return 0, false
}

// RuleChainNodes are the deterministic evaluators that are always candidates
// when the gatekeeper lets analysis run
func RuleChainNodes() []Node {
	return []Node{NodeMarket, NodeConcentration, NodeDiversification, NodeLiquidity}
}

// NodeNames renders a node list as wire names, preserving order
func NodeNames(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.String()
	}
	return out
}

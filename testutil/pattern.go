package testutil

import "github.com/com-junkawasaki/kotoba-sub011/rule"

// PatternNode builds a pattern node binding var v to vertices with the
// given label. An empty label matches any vertex.
func PatternNode(v, label string) rule.PatternNode {
	return rule.PatternNode{Var: v, Label: label}
}

// PatternEdge builds a pattern edge between two node vars. An empty v
// leaves the edge anonymous.
func PatternEdge(v, src, dst, label string) rule.PatternEdge {
	return rule.PatternEdge{Var: v, Src: src, Dst: dst, Label: label}
}

package graph

import (
	"encoding/json"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

// Document is the JSON wire form of a whole graph. It is what the CLI reads
// and writes and what test fixtures are written in.
type Document struct {
	Vertices []*VertexData `json:"vertices"`
	Edges    []*EdgeData   `json:"edges"`
}

// ParseDocument decodes a graph document from JSON.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalid(err, "Document", "Parse", "decode graph json")
	}
	return &doc, nil
}

// Snapshot builds an immutable snapshot from the document. The document is
// validated the same way a patch is: duplicate ids and edges with missing
// endpoints are rejected.
func (d *Document) Snapshot() (*Snapshot, error) {
	return NewSnapshot().Apply(Patch{
		AddVertices: d.Vertices,
		AddEdges:    d.Edges,
	})
}

// Export renders a snapshot as a document with vertices and edges in id
// order, so exporting the same snapshot twice yields identical bytes.
func Export(s *Snapshot) *Document {
	doc := &Document{
		Vertices: make([]*VertexData, 0, s.VertexCount()),
		Edges:    make([]*EdgeData, 0, s.EdgeCount()),
	}
	s.Vertices(func(v *VertexData) bool {
		doc.Vertices = append(doc.Vertices, v)
		return true
	})
	s.edges.Scan(func(item edgeItem) bool {
		doc.Edges = append(doc.Edges, item.data)
		return true
	})
	return doc
}

// Encode renders the document as indented JSON.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, errors.WrapInvalid(err, "Document", "Encode", "marshal graph json")
	}
	return data, nil
}

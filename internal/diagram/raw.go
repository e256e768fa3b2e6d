package diagram

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// Attr — атрибут узла диаграммы с сохранением порядка.
type Attr struct {
	Name  string
	Value string
}

// RawNode — узел mxGraphModel до типизации.
//
// Для обёрток object/UserObject атрибуты вложенного mxCell
// (style, parent, source, target, vertex, edge) сливаются в один узел.
type RawNode struct {
	Tag    string
	ID     string
	Parent string
	Source string
	Target string
	Value  string
	Style  string
	Vertex bool
	Edge   bool
	Attrs  []Attr // пользовательские атрибуты в порядке документа
}

// Attr возвращает значение атрибута без учёта регистра имени.
func (n *RawNode) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return "", false
}

// IsConnector сообщает, является ли узел ребром.
func (n *RawNode) IsConnector() bool {
	return n.Edge || n.Source != "" || n.Target != ""
}

// IsEdgeLabel сообщает, является ли узел подписью ребра.
func (n *RawNode) IsEdgeLabel() bool {
	return strings.Contains(n.Style, "edgeLabel")
}

// RawGraph — узлы диаграммы в порядке документа.
type RawGraph struct {
	Nodes []*RawNode
}

// Node возвращает узел по ID или nil.
func (g *RawGraph) Node(id string) *RawNode {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// element — минимальное DOM-дерево для разбора mxGraphModel.
type element struct {
	name     string
	attrs    []xml.Attr
	children []*element
	text     strings.Builder
}

func (e *element) child(name string) *element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (e *element) find(name string) *element {
	if e.name == name {
		return e
	}
	for _, c := range e.children {
		if found := c.find(name); found != nil {
			return found
		}
	}
	return nil
}

func parseTree(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *element
	var stack []*element

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, attrs: t.Copy().Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("unbalanced end element")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, errors.New("empty document")
	}
	if len(stack) != 0 {
		return nil, errors.New("unclosed element " + stack[len(stack)-1].name)
	}
	return root, nil
}

// ParseGraphModel разбирает внутренний XML (mxGraphModel) в RawGraph.
func ParseGraphModel(innerXML []byte) (*RawGraph, error) {
	tree, err := parseTree(innerXML)
	if err != nil {
		return nil, formatErr(StageXML, err)
	}

	model := tree.find("mxGraphModel")
	if model == nil {
		return nil, formatErr(StageXML, errors.New("mxGraphModel element not found"))
	}
	root := model.child("root")
	if root == nil {
		return nil, formatErr(StageXML, errors.New("mxGraphModel has no root element"))
	}

	graph := &RawGraph{}
	for _, el := range root.children {
		switch el.name {
		case "mxCell":
			graph.Nodes = append(graph.Nodes, cellNode(el, nil))
		case "object", "UserObject":
			graph.Nodes = append(graph.Nodes, cellNode(el.child("mxCell"), el))
		}
	}
	return graph, nil
}

// cellNode собирает RawNode из mxCell и необязательной обёртки.
func cellNode(cell, wrapper *element) *RawNode {
	n := &RawNode{}
	if wrapper != nil {
		n.Tag = wrapper.name
	} else {
		n.Tag = "mxCell"
	}

	if cell != nil {
		applyAttrs(n, cell.attrs, false)
	}
	if wrapper != nil {
		applyAttrs(n, wrapper.attrs, true)
	}
	return n
}

func applyAttrs(n *RawNode, attrs []xml.Attr, wrapper bool) {
	for _, a := range attrs {
		switch a.Name.Local {
		case "id":
			n.ID = a.Value
		case "parent":
			n.Parent = a.Value
		case "source":
			n.Source = a.Value
		case "target":
			n.Target = a.Value
		case "style":
			n.Style = a.Value
		case "vertex":
			n.Vertex = a.Value == "1"
		case "edge":
			n.Edge = a.Value == "1"
		case "value":
			n.Value = a.Value
		case "label":
			if wrapper {
				n.Value = a.Value
			}
			n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
		default:
			n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
		}
	}
}

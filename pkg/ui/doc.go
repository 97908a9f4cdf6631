// Package ui defines the live node tree a Trellis client displays and the
// widget registry that maps serialized element types onto host widgets.
//
// The renderer (package render) turns serialized element trees into Node
// trees. By the time a Node exists, every callback reference has become an
// invocable Callback and every mutable marker a Binding; widget code never
// sees wire markers.
//
// Widgets are registered per client instance:
//
//	reg := ui.NewRegistry()
//	reg.Register("badge", ui.WidgetFunc(func(props ui.Props, children []*ui.Node) (*ui.Node, error) {
//	    return &ui.Node{Kind: ui.KindElement, Tag: "span", Props: props, Children: children}, nil
//	}))
//
// Unknown element types are a data condition, not an error: the renderer
// substitutes a visible placeholder node and keeps going.
package ui

// Package render materializes serialized element trees into live ui.Node
// trees.
//
// Rendering is total: every input tree produces an output tree. Each node
// takes one of two branches — an intrinsic tag renders directly, anything
// else goes through the widget registry — and an unregistered type becomes
// a visible placeholder rather than an error, so a missing widget shows up
// on screen instead of vanishing.
//
// Before either branch the renderer resolves markers in the props: callback
// references become ui.Callback functions that send one event message per
// invocation, mutable markers become ui.Binding values whose setter does the
// same, and nested elements render recursively. Widgets therefore never see
// wire markers.
//
//	r := render.New(registry, sender)
//	node := r.Render(store.Snapshot().Tree)
//
// Node identity across consecutive renders uses the element's key when the
// application supplied one and falls back to the child's position. Stable
// keys keep focus and animation continuity across tree replacements; they
// are not required for correctness of content.
package render

package model

// FillSpans returns obj with every node that has no span of its own
// inheriting sp. Nodes that already carry a span keep it. Used when a
// macro expansion splices freshly constructed nodes into a tree whose
// position is known.
func FillSpans(obj Object, sp Span) Object {
	switch t := obj.(type) {
	case Sequence:
		items := make([]Object, t.Len())
		for i := range items {
			items[i] = FillSpans(t.At(i), sp)
		}
		t.items = items
		t.span = t.span.Merge(sp)
		return t
	case FString:
		items := make([]Object, len(t.items))
		for i := range items {
			items[i] = FillSpans(t.items[i], sp)
		}
		t.items = items
		t.span = t.span.Merge(sp)
		return t
	case FComponent:
		items := make([]Object, len(t.items))
		for i := range items {
			items[i] = FillSpans(t.items[i], sp)
		}
		t.items = items
		t.span = t.span.Merge(sp)
		return t
	default:
		return obj.WithSpan(sp)
	}
}

package tree

// Presentation is the display metadata of a node kind: its icon, the
// command invoked on activation, and whether the node expands. The
// mapping is total over the closed kind set.
type Presentation struct {
	Icon       string
	Command    string
	Expandable bool
}

// PresentationFor returns the presentation for a node kind.
func PresentationFor(kind Kind) Presentation {
	switch kind {
	case KindItem:
		return Presentation{Icon: "file-alt-regular.svg", Command: "arcgisAssistant.open"}
	case KindPortal:
		return Presentation{Icon: "globe-americas-solid.svg", Expandable: true}
	case KindGroup, KindFolder, KindContentFolder:
		return Presentation{Icon: "folder-solid.svg", Expandable: true}
	case KindGroupFolder:
		return Presentation{Icon: "share-alt.svg", Expandable: true}
	case KindUserFolder:
		return Presentation{Icon: "users-solid.svg", Expandable: true}
	}
	return Presentation{}
}

package stages

import "github.com/linefeed/analyzer/core"

var Repo = map[string]core.NewTransform{
	"uppercaser": NewUppercaser,
	"flipper":    NewFlipper,
	"rotator":    NewRotator,
	"expander":   NewExpander,
	"logger":     NewLogger,
	"typewriter": NewTypewriter,
}

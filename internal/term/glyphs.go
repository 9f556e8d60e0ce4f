package term

// Box-drawing glyphs used by the full-screen renderer. Double-struck borders
// frame the outer screen and dialogs; light lines divide interior panels.
const (
	DBorderUpLeft    = "╔"
	DBorderUpRight   = "╗"
	DBorderDownLeft  = "╚"
	DBorderDownRight = "╝"
	DBorderHoriz     = "═"
	DBorderVert      = "║"

	DVertTLeft  = "╠"
	DVertTRight = "╣"
	DHorizTDown = "╦"
	DHorizTUp   = "╩"

	Horizontal       = "─"
	HorizontalDashed = "┄"
	Vertical         = "│"
	DownLeftCorner   = "└"
	DownRightCorner  = "┘"
	TUp              = "┴"
	TDown            = "┬"
	Cross            = "┼"
)

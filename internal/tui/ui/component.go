package ui

// Page names. Key scopes and the page stack share them.
const (
	PageConversations = "conversations"
	PageThread        = "thread"
	PageDetails       = "details"
	PageSearch        = "search"
	PageBroadcast     = "broadcast"
	PageHelp          = "help"
	PageAuth          = "auth"
)

// MenuHint is one shortcut shown in the header menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // conversation jump keys, drawn in NumericKeyColor
}

// Component is implemented by every page of the inbox.
type Component interface {
	Name() string
	Init()
	Start()
	Stop()
	Hints() []MenuHint
}

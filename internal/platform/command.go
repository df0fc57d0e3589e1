package platform

// OptionType narrows slash-command options to what the bot actually uses.
type OptionType int

const (
	OptionString OptionType = iota
	OptionInteger
	OptionChannel
)

// CommandOption is one option of a slash command or subcommand.
type CommandOption struct {
	Type         OptionType
	Name         string
	Description  string
	Required     bool
	Autocomplete bool
}

// Subcommand groups options under a named subcommand.
type Subcommand struct {
	Name        string
	Description string
	Options     []CommandOption
}

// CommandSpec is a platform-neutral slash command definition. The adapter
// translates it into the SDK's application command type on registration.
type CommandSpec struct {
	Name        string
	Description string
	Options     []CommandOption
	Subcommands []Subcommand
}

package chat

// Command is one action typed by the user in the input line.
type Command interface {
	Name() string
}

// SendCommand publishes the text as a chat message.
type SendCommand struct {
	Text string
}

func (SendCommand) Name() string { return "send" }

// ExportCommand writes the visible conversation to a file.
type ExportCommand struct {
	Format string
}

func (ExportCommand) Name() string { return "export" }

type SignInCommand struct {
	Provider string
}

func (SignInCommand) Name() string { return "signin" }

type SignOutCommand struct{}

func (SignOutCommand) Name() string { return "signout" }

// WhoCommand lists the users currently present.
type WhoCommand struct{}

func (WhoCommand) Name() string { return "who" }

type HelpCommand struct{}

func (HelpCommand) Name() string { return "help" }

type QuitCommand struct{}

func (QuitCommand) Name() string { return "quit" }

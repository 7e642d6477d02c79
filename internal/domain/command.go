package domain

// ExecCommand represents an external command to be executed.
// This type is used to pass command information between layers
// without exposing implementation details.
type ExecCommand struct {
	Program string
	Dir     string
	Args    []string
}

// NewCommand creates an ExecCommand for program with args, run in dir.
func NewCommand(program string, args []string, dir string) *ExecCommand {
	return &ExecCommand{
		Program: program,
		Args:    args,
		Dir:     dir,
	}
}

// NewInterpreterCommand builds the command that runs script with the given
// interpreter argv (e.g. ["python3"] or ["node", "--no-warnings"]).
// Returns nil if interpreter is empty.
func NewInterpreterCommand(interpreter []string, script, dir string) *ExecCommand {
	if len(interpreter) == 0 {
		return nil
	}
	args := make([]string, 0, len(interpreter))
	args = append(args, interpreter[1:]...)
	args = append(args, script)
	return NewCommand(interpreter[0], args, dir)
}

package procexec

// ExitZero accepts only exit code 0 and ignores output.
type ExitZero struct{}

func (ExitZero) Consume(string) {}

func (ExitZero) AcceptExit(code int) bool { return code == 0 }

// LineFunc adapts a line callback into an Interpreter that accepts the given
// exit codes (only 0 when none are listed).
type LineFunc struct {
	OnLine    func(string)
	Successes []int
}

func (l LineFunc) Consume(line string) {
	if l.OnLine != nil {
		l.OnLine(line)
	}
}

func (l LineFunc) AcceptExit(code int) bool {
	if len(l.Successes) == 0 {
		return code == 0
	}
	for _, ok := range l.Successes {
		if code == ok {
			return true
		}
	}
	return false
}

package session

// DirLoader loads turn sequences from session files under a directory.
type DirLoader struct {
	Dir string
}

// LoadTurns parses the session's transcript and pairs it into turns.
func (l DirLoader) LoadTurns(sessionID string) ([]Turn, error) {
	f, err := Find(l.Dir, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := ParseFile(f.Path)
	if err != nil {
		return nil, err
	}
	return BuildTurns(messages), nil
}

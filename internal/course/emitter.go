package course

// Emitter records course events. *events.Log satisfies it.
type Emitter interface {
	Emit(level, name, msg string, fields map[string]interface{}) error
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, string, string, map[string]interface{}) error { return nil }

func emitterOrNop(e Emitter) Emitter {
	if e == nil {
		return nopEmitter{}
	}
	return e
}

package model

import "fmt"

// EmitterType selects which dependency edges are extracted from the symbol map.
type EmitterType string

const (
	EmitClassToken               EmitterType = "class_token"
	EmitClassSuperglobalToken    EmitterType = "class_superglobal_token"
	EmitFileToken                EmitterType = "file_token"
	EmitFunctionToken            EmitterType = "function_token"
	EmitFunctionCall             EmitterType = "function_call"
	EmitFunctionSuperglobalToken EmitterType = "function_superglobal_token"
	EmitUseToken                 EmitterType = "use_token"
)

// AllEmitterTypes lists every emitter type in a fixed order.
var AllEmitterTypes = []EmitterType{
	EmitClassToken,
	EmitClassSuperglobalToken,
	EmitFileToken,
	EmitFunctionToken,
	EmitFunctionCall,
	EmitFunctionSuperglobalToken,
	EmitUseToken,
}

// DefaultEmitterTypes is used when the configuration does not name any.
var DefaultEmitterTypes = []EmitterType{EmitClassToken, EmitUseToken}

// ParseEmitterType validates s against the closed set of emitter types.
func ParseEmitterType(s string) (EmitterType, error) {
	for _, t := range AllEmitterTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid analyser type %q", s)
}

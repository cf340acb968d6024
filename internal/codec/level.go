package codec

import (
	"fmt"

	"zigbee-bridge/internal/ncp"
)

// Level control type strings, as read from input and rendered as control_type.
const (
	LevelTypeMoveTo   = "moveto"
	LevelTypeMoveUp   = "moveup"
	LevelTypeMoveDown = "movedown"
	LevelTypeStepUp   = "stepup"
	LevelTypeStepDown = "stepdown"
	LevelTypeStop     = "stop"
	levelTypeError    = "error"
)

var levelKinds = map[string]ncp.LevelControlKind{
	LevelTypeMoveTo:   ncp.LevelMoveTo,
	LevelTypeMoveUp:   ncp.LevelMoveUp,
	LevelTypeMoveDown: ncp.LevelMoveDown,
	LevelTypeStepUp:   ncp.LevelStepUp,
	LevelTypeStepDown: ncp.LevelStepDown,
	LevelTypeStop:     ncp.LevelStop,
}

var levelNames = map[ncp.LevelControlKind]string{
	ncp.LevelMoveTo:   LevelTypeMoveTo,
	ncp.LevelMoveUp:   LevelTypeMoveUp,
	ncp.LevelMoveDown: LevelTypeMoveDown,
	ncp.LevelStepUp:   LevelTypeStepUp,
	ncp.LevelStepDown: LevelTypeStepDown,
	ncp.LevelStop:     LevelTypeStop,
}

// LevelControlDoc is the document form of a level control command. Absent
// fields are omitted: move has no transition_time, stop carries only onoff,
// and an unrecognized kind renders as control_type "error" alone.
type LevelControlDoc struct {
	ControlType    string `json:"control_type"`
	Value          *int32 `json:"value,omitempty"`
	TransitionTime *int32 `json:"transition_time,omitempty"`
	OnOff          *bool  `json:"onoff,omitempty"`
}

// DecodeLevelControl reads a level control command from an input document:
// {type, value, transition_time, auto_onoff}.
func DecodeLevelControl(doc Document) (ncp.LevelControlCommand, error) {
	var cmd ncp.LevelControlCommand

	typ, _ := doc.String("type")
	kind, ok := levelKinds[typ]
	if !ok {
		return cmd, fmt.Errorf("%w: unknown level control type %q", ErrInvalidInput, typ)
	}

	if kind != ncp.LevelStop {
		if cmd.Value, ok = toInt32(doc["value"]); !ok {
			return cmd, fmt.Errorf("%w: value must be an integer", ErrInvalidInput)
		}
	}

	switch kind {
	case ncp.LevelMoveTo, ncp.LevelStepUp, ncp.LevelStepDown:
		if t, ok := toInt32(doc["transition_time"]); ok {
			cmd.TransitionTime = t
		}
	}

	onoff, _ := doc.Bool("auto_onoff")
	cmd.Kind = kind.WithOnOff(onoff)
	return cmd, nil
}

// EncodeLevelControl renders a level control command. It never fails.
func EncodeLevelControl(cmd ncp.LevelControlCommand) LevelControlDoc {
	if !cmd.Kind.Valid() {
		return LevelControlDoc{ControlType: levelTypeError}
	}
	base := cmd.Kind.Base()
	onoff := cmd.Kind.AutoOnOff()
	doc := LevelControlDoc{ControlType: levelNames[base], OnOff: &onoff}

	switch base {
	case ncp.LevelMoveTo, ncp.LevelStepUp, ncp.LevelStepDown:
		value, transition := cmd.Value, cmd.TransitionTime
		doc.Value = &value
		doc.TransitionTime = &transition
	case ncp.LevelMoveUp, ncp.LevelMoveDown:
		value := cmd.Value
		doc.Value = &value
	}
	return doc
}

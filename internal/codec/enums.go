package codec

// tokens maps a native enum value (its index) to a lowercase token.
type tokens []string

func (t tokens) name(v int64, fallback string) string {
	if v < 0 || v >= int64(len(t)) {
		return fallback
	}
	return t[v]
}

const tokenUnknown = "unknown"

var (
	notificationStatuses = tokens{
		"success",
		"port_problem",
		"no_such_command",
		"wrong_number_of_arguments",
		"argument_out_of_range",
		"argument_syntax_error",
		"string_too_long",
		"invalid_argument_type",
		"error",
	}

	networkStatuses = tokens{
		"join",
		"leave",
		"find_form",
		"find_form_failed",
		"find_join",
		"find_join_failed",
		"network_up",
		"network_down",
	}

	networkFindStatuses = tokens{"found", "finished", "failed"}

	discoveryStatuses = tokens{
		"start",
		"found",
		"in_progress",
		"done",
		"no_device",
		"error",
		"changed",
		"lost",
	}

	clientCommands = tokens{
		"identify",
		"identify_query",
		"on",
		"off",
		"toggle",
		"move_to_level",
		"move",
		"step",
		"stop",
		"ezmode",
	}

	groupActions = tokens{
		"add",
		"view",
		"get_membership",
		"remove",
		"remove_all",
		"add_if_identifying",
	}

	commissioningStatuses = tokens{
		"busy",
		"network_steering_form",
		"network_steering_success",
		"network_steering_failed",
		"wait_network_steering",
		"target_success",
		"target_stop",
		"target_failed",
		"initiator_success",
		"initiator_stop",
		"initiator_failed",
	}

	neighborTypes = tokens{"coordinator", "router", "end_device"}
)

// Discovery status tokens consumed by the device tracker.
const (
	DiscoveryFound   = "found"
	DiscoveryChanged = "changed"
	DiscoveryLost    = "lost"
)

// Report attribute types.
const (
	AttrTemperature = "temperature"
	AttrOccupancy   = "occupancy"
	AttrIlluminance = "illuminance"
	AttrHumidity    = "humidity"
	attrNone        = "none"
)

var reportAttributeTypes = tokens{AttrTemperature, AttrOccupancy, AttrIlluminance, AttrHumidity}

// Local attribute change kinds.
const (
	AttrOnOff = "onoff"
	AttrLevel = "level"
)

var changeAttributes = tokens{AttrOnOff, AttrLevel}

// ZDOSuccess is the ZDO status token for a successful response.
const ZDOSuccess = "success"

var zdoStatuses = map[uint8]string{
	0x00: ZDOSuccess,
	0x80: "inv_requesttype",
	0x81: "device_not_found",
	0x82: "invalid_ep",
	0x83: "not_active",
	0x84: "not_supported",
	0x85: "timeout",
	0x86: "no_match",
	0x88: "no_entry",
	0x89: "no_descriptor",
	0x8a: "insufficient_space",
	0x8b: "not_permitted",
	0x8c: "table_full",
	0x8d: "not_authorized",
}

func zdoStatus(s uint8) string {
	if name, ok := zdoStatuses[s]; ok {
		return name
	}
	return "error"
}

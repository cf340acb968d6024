package codec

// Envelope type discriminators.
const (
	TypeNotification            = "notification"
	TypeNetworkNotification     = "network_notification"
	TypeNetworkFind             = "network_find"
	TypeDeviceDiscover          = "device_discover"
	TypeClientToServerCommand   = "client_to_server_command"
	TypeReportAttribute         = "report_attribute"
	TypeAttributeChange         = "attribute_change"
	TypeLevelControl            = "level_control"
	TypeIdentifyFeedbackStart   = "identify_feedback_start"
	TypeIdentifyFeedbackStop    = "identify_feedback_stop"
	TypeBroadcastIdentifyQuery  = "broadcast_identify_query_response"
	TypeGroupsInfo              = "groups_info"
	TypeReportingConfigure      = "reporting_configure"
	TypeCommissioningStatus     = "commissioning_status"
	TypeCommissioningTargetInfo = "commissioning_target_info"
	TypeCommissioningBoundInfo  = "commissioning_bound_info"
	TypeBasicResetToFactory     = "basic_reset_to_factory"
	TypeIEEEAddr                = "ieee_addr"
	TypeNwkAddr                 = "nwk_addr"
	TypeSimpleDesc              = "simple_desc"
	TypeMatchDesc               = "match_desc"
	TypeActiveEndpoints         = "active_endpoints"
	TypeDeviceAnnounce          = "device_announce"
	TypeBind                    = "bind"
	TypeUnbind                  = "unbind"
	TypeMgmtLeave               = "mgmt_leave"
	TypePermitJoin              = "permit_join"
	TypeMgmtLqi                 = "mgmt_lqi"
	TypeUnknown                 = "unknown"
)

// Envelope is one decoded notification. Each concrete record serializes to
// a flat document whose "type" key is Type().
type Envelope interface {
	Type() string
}

// Header carries the type discriminator of every envelope.
type Header struct {
	Kind string `json:"type"`
}

// Type returns the envelope's discriminator.
func (h Header) Type() string { return h.Kind }

// StatusEnvelope carries a single status token.
// Used by notification, network, commissioning status and ZDO status-only responses.
type StatusEnvelope struct {
	Header
	Status string `json:"status"`
}

type DeviceDiscoverEnvelope struct {
	Header
	Status string    `json:"status"`
	Device DeviceDoc `json:"device"`
}

type ClientCommandEnvelope struct {
	Header
	Command    string `json:"command"`
	EndpointID int32  `json:"endpoint_id"`
}

// ReportAttributeEnvelope holds a sensor report. Value is an integer, or
// "occupied"/"unoccupied" for occupancy.
type ReportAttributeEnvelope struct {
	Header
	EndpointID    int32  `json:"endpoint_id"`
	AttributeType string `json:"attribute_type"`
	Value         any    `json:"value"`
}

// AttributeChangeEnvelope reports a local attribute change. Value is a bool
// for onoff and an integer otherwise.
type AttributeChangeEnvelope struct {
	Header
	EndpointID int32  `json:"endpoint_id"`
	Attribute  string `json:"attribute"`
	Value      any    `json:"value"`
}

type LevelControlEnvelope struct {
	Header
	LevelControlDoc
}

type IdentifyStartEnvelope struct {
	Header
	EndpointID int32 `json:"endpoint_id"`
	Duration   int32 `json:"duration"`
}

type IdentifyStopEnvelope struct {
	Header
	EndpointID int32 `json:"endpoint_id"`
}

type IdentifyQueryEnvelope struct {
	Header
	NodeID     int32 `json:"node_id"`
	EndpointID int32 `json:"endpoint_id"`
	Timeout    int32 `json:"timeout"`
}

type GroupsInfoEnvelope struct {
	Header
	EndpointID int32    `json:"endpoint_id"`
	Action     string   `json:"action"`
	Groups     []uint16 `json:"groups"`
}

// ReportingDoc describes one attribute reporting configuration.
type ReportingDoc struct {
	Used             bool   `json:"used"`
	EndpointID       uint8  `json:"endpoint_id"`
	ClusterID        uint16 `json:"cluster_id"`
	AttributeID      uint16 `json:"attribute_id"`
	IsServer         bool   `json:"is_server"`
	MinInterval      uint16 `json:"min_interval"`
	MaxInterval      uint16 `json:"max_interval"`
	ReportableChange uint32 `json:"reportable_change"`
}

type ReportingConfigureEnvelope struct {
	Header
	Reporting ReportingDoc `json:"reporting"`
}

type CommissioningTargetEnvelope struct {
	Header
	NodeID     int32 `json:"node_id"`
	EndpointID int32 `json:"endpoint_id"`
}

type CommissioningBoundEnvelope struct {
	Header
	ClusterID  int32 `json:"cluster_id"`
	EndpointID int32 `json:"endpoint_id"`
}

// EmptyEnvelope has no fields beyond its type.
type EmptyEnvelope struct {
	Header
}

// AddrEnvelope answers an IEEE or network address request.
type AddrEnvelope struct {
	Header
	Status            string   `json:"status"`
	EUI64             string   `json:"eui64"`
	NodeID            uint16   `json:"node_id"`
	AssociatedDevices []uint16 `json:"associated_devices"`
}

type SimpleDescEnvelope struct {
	Header
	Status   string      `json:"status"`
	Endpoint EndpointDoc `json:"endpoint"`
}

// EndpointListEnvelope answers match descriptor and active endpoint requests.
type EndpointListEnvelope struct {
	Header
	Status    string  `json:"status"`
	NodeID    uint16  `json:"node_id"`
	Endpoints []int32 `json:"endpoints"`
}

type DeviceAnnounceEnvelope struct {
	Header
	EUI64      string `json:"eui64"`
	NodeID     uint16 `json:"node_id"`
	Capability int32  `json:"capability"`
}

// NeighborDoc is one entry of a neighbor table.
type NeighborDoc struct {
	EUI64      string `json:"eui64"`
	NodeID     uint16 `json:"node_id"`
	DeviceType string `json:"device_type"`
	LQI        uint8  `json:"lqi"`
	Depth      uint8  `json:"depth"`
}

type MgmtLqiEnvelope struct {
	Header
	Status     string        `json:"status"`
	Total      uint8         `json:"total"`
	StartIndex uint8         `json:"start_index"`
	Neighbors  []NeighborDoc `json:"neighbors"`
}

// UnknownEnvelope is produced for tags without a decoder.
type UnknownEnvelope struct {
	Header
	TypeID int32 `json:"type_id"`
}

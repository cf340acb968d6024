package ncp

import "fmt"

// Tag identifies a notification and therefore the shape of its payload.
type Tag int32

const (
	TagNotification Tag = iota
	TagNetworkNotification
	TagNetworkFind
	TagDeviceDiscover
	TagClientToServerCommand
	TagReportAttribute
	TagAttributeChange
	TagLevelControl
	TagIdentifyFeedbackStart
	TagIdentifyFeedbackStop
	TagBroadcastIdentifyQuery
	TagGroupsInfo
	TagReportingConfigure
	TagCommissioningStatus
	TagCommissioningTargetInfo
	TagCommissioningBoundInfo
	TagBasicResetToFactory
	TagIEEEAddrResp
	TagNwkAddrResp
	TagSimpleDescResp
	TagMatchDescResp
	TagActiveEndpointsResp
	TagDeviceAnnounce
	TagBindResp
	TagUnbindResp
	TagMgmtLeaveResp
	TagMgmtPermitJoinResp
	TagMgmtLqiResp
)

// TagCount is the number of known tags.
const TagCount = int(TagMgmtLqiResp) + 1

// String returns a human-readable name for a tag.
func (t Tag) String() string {
	switch t {
	case TagNotification:
		return "NOTIFICATION"
	case TagNetworkNotification:
		return "NETWORK_NOTIFICATION"
	case TagNetworkFind:
		return "NETWORK_FIND"
	case TagDeviceDiscover:
		return "DEVICE_DISCOVER"
	case TagClientToServerCommand:
		return "CLIENT_TO_SERVER_COMMAND"
	case TagReportAttribute:
		return "REPORT_ATTRIBUTE"
	case TagAttributeChange:
		return "ATTRIBUTE_CHANGE"
	case TagLevelControl:
		return "LEVEL_CONTROL"
	case TagIdentifyFeedbackStart:
		return "IDENTIFY_FEEDBACK_START"
	case TagIdentifyFeedbackStop:
		return "IDENTIFY_FEEDBACK_STOP"
	case TagBroadcastIdentifyQuery:
		return "BROADCAST_IDENTIFY_QUERY"
	case TagGroupsInfo:
		return "GROUPS_INFO"
	case TagReportingConfigure:
		return "REPORTING_CONFIGURE"
	case TagCommissioningStatus:
		return "COMMISSIONING_STATUS"
	case TagCommissioningTargetInfo:
		return "COMMISSIONING_TARGET_INFO"
	case TagCommissioningBoundInfo:
		return "COMMISSIONING_BOUND_INFO"
	case TagBasicResetToFactory:
		return "BASIC_RESET_TO_FACTORY"
	case TagIEEEAddrResp:
		return "IEEE_ADDR_RESP"
	case TagNwkAddrResp:
		return "NWK_ADDR_RESP"
	case TagSimpleDescResp:
		return "SIMPLE_DESC_RESP"
	case TagMatchDescResp:
		return "MATCH_DESC_RESP"
	case TagActiveEndpointsResp:
		return "ACTIVE_EP_RESP"
	case TagDeviceAnnounce:
		return "DEVICE_ANNOUNCE"
	case TagBindResp:
		return "BIND_RESP"
	case TagUnbindResp:
		return "UNBIND_RESP"
	case TagMgmtLeaveResp:
		return "MGMT_LEAVE_RESP"
	case TagMgmtPermitJoinResp:
		return "MGMT_PERMIT_JOIN_RESP"
	case TagMgmtLqiResp:
		return "MGMT_LQI_RESP"
	default:
		return fmt.Sprintf("TAG(%d)", int32(t))
	}
}

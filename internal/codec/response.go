package codec

import (
	"io"
	"log/slog"

	"zigbee-bridge/internal/ncp"
)

type decodeFunc func(typ string, r *ncp.PayloadReader) Envelope

type decoder struct {
	typ    string
	decode decodeFunc
}

// decoders binds every known tag to exactly one envelope type and decoder.
var decoders = map[ncp.Tag]decoder{
	ncp.TagNotification:            {TypeNotification, statusDecoder(notificationStatuses)},
	ncp.TagNetworkNotification:     {TypeNetworkNotification, statusDecoder(networkStatuses)},
	ncp.TagNetworkFind:             {TypeNetworkFind, statusDecoder(networkFindStatuses)},
	ncp.TagDeviceDiscover:          {TypeDeviceDiscover, decodeDeviceDiscover},
	ncp.TagClientToServerCommand:   {TypeClientToServerCommand, decodeClientCommand},
	ncp.TagReportAttribute:         {TypeReportAttribute, decodeReportAttribute},
	ncp.TagAttributeChange:         {TypeAttributeChange, decodeAttributeChange},
	ncp.TagLevelControl:            {TypeLevelControl, decodeLevelControlEvent},
	ncp.TagIdentifyFeedbackStart:   {TypeIdentifyFeedbackStart, decodeIdentifyStart},
	ncp.TagIdentifyFeedbackStop:    {TypeIdentifyFeedbackStop, decodeIdentifyStop},
	ncp.TagBroadcastIdentifyQuery:  {TypeBroadcastIdentifyQuery, decodeIdentifyQuery},
	ncp.TagGroupsInfo:              {TypeGroupsInfo, decodeGroupsInfo},
	ncp.TagReportingConfigure:      {TypeReportingConfigure, decodeReportingConfigure},
	ncp.TagCommissioningStatus:     {TypeCommissioningStatus, statusDecoder(commissioningStatuses)},
	ncp.TagCommissioningTargetInfo: {TypeCommissioningTargetInfo, decodeCommissioningTarget},
	ncp.TagCommissioningBoundInfo:  {TypeCommissioningBoundInfo, decodeCommissioningBound},
	ncp.TagBasicResetToFactory:     {TypeBasicResetToFactory, decodeEmpty},
	ncp.TagIEEEAddrResp:            {TypeIEEEAddr, decodeAddr},
	ncp.TagNwkAddrResp:             {TypeNwkAddr, decodeAddr},
	ncp.TagSimpleDescResp:          {TypeSimpleDesc, decodeSimpleDesc},
	ncp.TagMatchDescResp:           {TypeMatchDesc, decodeEndpointList},
	ncp.TagActiveEndpointsResp:     {TypeActiveEndpoints, decodeEndpointList},
	ncp.TagDeviceAnnounce:          {TypeDeviceAnnounce, decodeDeviceAnnounce},
	ncp.TagBindResp:                {TypeBind, decodeZDOStatus},
	ncp.TagUnbindResp:              {TypeUnbind, decodeZDOStatus},
	ncp.TagMgmtLeaveResp:           {TypeMgmtLeave, decodeZDOStatus},
	ncp.TagMgmtPermitJoinResp:      {TypePermitJoin, decodeZDOStatus},
	ncp.TagMgmtLqiResp:             {TypeMgmtLqi, decodeMgmtLqi},
}

// Codec turns tagged notification payloads into envelopes.
type Codec struct {
	logger *slog.Logger
}

func NewCodec(logger *slog.Logger) *Codec {
	return &Codec{logger: logger.With("component", "codec")}
}

// Decode translates one notification. It never fails: unknown tags produce
// an UnknownEnvelope and truncated payloads decode missing fields as zero.
func (c *Codec) Decode(tag ncp.Tag, payload []byte) Envelope {
	d, ok := decoders[tag]
	if !ok {
		c.logger.Warn("unknown notification tag", "tag", int32(tag))
		return UnknownEnvelope{Header: Header{TypeUnknown}, TypeID: int32(tag)}
	}
	r := ncp.NewPayloadReader(payload)
	env := d.decode(d.typ, r)
	if r.Short() {
		c.logger.Debug("short notification payload", "tag", tag, "len", len(payload))
	}
	return env
}

// Decode translates with the package-level table and no logging.
func Decode(tag ncp.Tag, payload []byte) Envelope {
	return NewCodec(slog.New(slog.NewTextHandler(io.Discard, nil))).Decode(tag, payload)
}

func statusDecoder(names tokens) decodeFunc {
	return func(typ string, r *ncp.PayloadReader) Envelope {
		return StatusEnvelope{
			Header: Header{typ},
			Status: names.name(int64(r.Int32()), tokenUnknown),
		}
	}
}

func decodeZDOStatus(typ string, r *ncp.PayloadReader) Envelope {
	return StatusEnvelope{Header: Header{typ}, Status: zdoStatus(r.Uint8())}
}

func decodeDeviceDiscover(typ string, r *ncp.PayloadReader) Envelope {
	status := discoveryStatuses.name(int64(r.Int32()), tokenUnknown)
	return DeviceDiscoverEnvelope{
		Header: Header{typ},
		Status: status,
		Device: EncodeDevice(r.Device()),
	}
}

func decodeClientCommand(typ string, r *ncp.PayloadReader) Envelope {
	cmd := clientCommands.name(int64(r.Int32()), tokenUnknown)
	return ClientCommandEnvelope{Header: Header{typ}, Command: cmd, EndpointID: r.Int32()}
}

func decodeReportAttribute(typ string, r *ncp.PayloadReader) Envelope {
	env := ReportAttributeEnvelope{Header: Header{typ}, EndpointID: r.Int32()}
	attr := reportAttributeTypes.name(int64(r.Int32()), attrNone)
	value := r.Int32()

	env.AttributeType = attr
	switch attr {
	case AttrOccupancy:
		if value != 0 {
			env.Value = "occupied"
		} else {
			env.Value = "unoccupied"
		}
	case attrNone:
		env.Value = int32(0)
	default:
		env.Value = value
	}
	return env
}

func decodeAttributeChange(typ string, r *ncp.PayloadReader) Envelope {
	env := AttributeChangeEnvelope{Header: Header{typ}, EndpointID: r.Int32()}
	env.Attribute = changeAttributes.name(int64(r.Int32()), attrNone)
	value := r.Int32()
	if env.Attribute == AttrOnOff {
		env.Value = value != 0
	} else {
		env.Value = value
	}
	return env
}

func decodeLevelControlEvent(typ string, r *ncp.PayloadReader) Envelope {
	cmd := ncp.LevelControlCommand{
		Kind:           ncp.LevelControlKind(r.Int32()),
		Value:          r.Int32(),
		TransitionTime: r.Int32(),
	}
	return LevelControlEnvelope{Header: Header{typ}, LevelControlDoc: EncodeLevelControl(cmd)}
}

func decodeIdentifyStart(typ string, r *ncp.PayloadReader) Envelope {
	return IdentifyStartEnvelope{Header: Header{typ}, EndpointID: r.Int32(), Duration: r.Int32()}
}

func decodeIdentifyStop(typ string, r *ncp.PayloadReader) Envelope {
	return IdentifyStopEnvelope{Header: Header{typ}, EndpointID: r.Int32()}
}

func decodeIdentifyQuery(typ string, r *ncp.PayloadReader) Envelope {
	return IdentifyQueryEnvelope{
		Header:     Header{typ},
		NodeID:     r.Int32(),
		EndpointID: r.Int32(),
		Timeout:    r.Int32(),
	}
}

func decodeGroupsInfo(typ string, r *ncp.PayloadReader) Envelope {
	env := GroupsInfoEnvelope{Header: Header{typ}, EndpointID: r.Int32()}
	env.Action = groupActions.name(int64(r.Int32()), tokenUnknown)
	n := int(r.Uint8())
	if limit := r.Remaining() / 2; n > limit {
		n = limit
	}
	env.Groups = make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		env.Groups = append(env.Groups, r.Uint16())
	}
	return env
}

func decodeReportingConfigure(typ string, r *ncp.PayloadReader) Envelope {
	return ReportingConfigureEnvelope{
		Header: Header{typ},
		Reporting: ReportingDoc{
			Used:             r.Bool(),
			EndpointID:       r.Uint8(),
			ClusterID:        r.Uint16(),
			AttributeID:      r.Uint16(),
			IsServer:         r.Bool(),
			MinInterval:      r.Uint16(),
			MaxInterval:      r.Uint16(),
			ReportableChange: r.Uint32(),
		},
	}
}

func decodeCommissioningTarget(typ string, r *ncp.PayloadReader) Envelope {
	return CommissioningTargetEnvelope{Header: Header{typ}, NodeID: r.Int32(), EndpointID: r.Int32()}
}

func decodeCommissioningBound(typ string, r *ncp.PayloadReader) Envelope {
	return CommissioningBoundEnvelope{Header: Header{typ}, ClusterID: r.Int32(), EndpointID: r.Int32()}
}

func decodeEmpty(typ string, _ *ncp.PayloadReader) Envelope {
	return EmptyEnvelope{Header: Header{typ}}
}

func decodeAddr(typ string, r *ncp.PayloadReader) Envelope {
	env := AddrEnvelope{
		Header: Header{typ},
		Status: zdoStatus(r.Uint8()),
		EUI64:  FormatEUI64(r.EUI64()),
		NodeID: r.Uint16(),
	}
	n := int(r.Uint8())
	if limit := r.Remaining() / 2; n > limit {
		n = limit
	}
	env.AssociatedDevices = make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		env.AssociatedDevices = append(env.AssociatedDevices, r.Uint16())
	}
	return env
}

func decodeSimpleDesc(typ string, r *ncp.PayloadReader) Envelope {
	return SimpleDescEnvelope{
		Header:   Header{typ},
		Status:   zdoStatus(r.Uint8()),
		Endpoint: EncodeEndpoint(r.Endpoint()),
	}
}

func decodeEndpointList(typ string, r *ncp.PayloadReader) Envelope {
	env := EndpointListEnvelope{
		Header: Header{typ},
		Status: zdoStatus(r.Uint8()),
		NodeID: r.Uint16(),
	}
	n := int(r.Uint8())
	if limit := r.Remaining(); n > limit {
		n = limit
	}
	env.Endpoints = make([]int32, 0, n)
	for i := 0; i < n; i++ {
		env.Endpoints = append(env.Endpoints, int32(r.Uint8()))
	}
	return env
}

func decodeDeviceAnnounce(typ string, r *ncp.PayloadReader) Envelope {
	return DeviceAnnounceEnvelope{
		Header:     Header{typ},
		EUI64:      FormatEUI64(r.EUI64()),
		NodeID:     r.Uint16(),
		Capability: int32(r.Uint8()),
	}
}

const neighborSize = 8 + 2 + 1 + 1 + 1

func decodeMgmtLqi(typ string, r *ncp.PayloadReader) Envelope {
	env := MgmtLqiEnvelope{
		Header:     Header{typ},
		Status:     zdoStatus(r.Uint8()),
		Total:      r.Uint8(),
		StartIndex: r.Uint8(),
	}
	n := int(r.Uint8())
	if limit := r.Remaining() / neighborSize; n > limit {
		n = limit
	}
	env.Neighbors = make([]NeighborDoc, 0, n)
	for i := 0; i < n; i++ {
		env.Neighbors = append(env.Neighbors, NeighborDoc{
			EUI64:      FormatEUI64(r.EUI64()),
			NodeID:     r.Uint16(),
			DeviceType: neighborTypes.name(int64(r.Uint8()), tokenUnknown),
			LQI:        r.Uint8(),
			Depth:      r.Uint8(),
		})
	}
	return env
}
